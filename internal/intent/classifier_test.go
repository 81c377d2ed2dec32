package intent

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return NewClassifier(zerolog.Nop(), "")
}

func TestClassifyAudioCommand(t *testing.T) {
	c := newTestClassifier(t)

	res := c.Classify("play jazz music by Miles Davis")
	require.Equal(t, AudioControl, res.Intent)
	require.Greater(t, res.Confidence, 0.0)
	require.Equal(t, "play", res.Parameters["action"])
	require.Equal(t, "miles davis", res.Parameters["target"])
}

func TestClassifyHardwareCommand(t *testing.T) {
	c := newTestClassifier(t)

	res := c.Classify("turn on LED on pin 13")
	require.Equal(t, HardwareControl, res.Intent)
	require.Equal(t, 13, res.Parameters["pin"])
	require.Equal(t, "on", res.Parameters["action"])
}

func TestClassifyUnknown(t *testing.T) {
	c := newTestClassifier(t)

	res := c.Classify("zxqvbn fmpw")
	require.Equal(t, Unknown, res.Intent)
	require.Equal(t, 0.0, res.Confidence)
	require.Empty(t, res.Alternatives)
}

func TestAlternativesCappedAtThree(t *testing.T) {
	c := newTestClassifier(t)

	// Touches audio (play, music), system (open), smart home (lights),
	// communication (send), information (what).
	res := c.Classify("what should I do open lights play music send")
	require.NotEqual(t, Unknown, res.Intent)
	require.LessOrEqual(t, len(res.Alternatives), 3)
	for _, alt := range res.Alternatives {
		require.LessOrEqual(t, alt.Score, res.Confidence)
	}
}

func TestVolumeLevelExtraction(t *testing.T) {
	c := newTestClassifier(t)

	res := c.Classify("set volume to 75")
	require.Equal(t, AudioControl, res.Intent)
	require.Equal(t, "volume", res.Parameters["action"])
	require.Equal(t, 75, res.Parameters["level"])

	// Out-of-range numbers are not volume levels.
	res = c.Classify("set volume to 500")
	require.NotContains(t, res.Parameters, "level")
}

func TestExtractNavigationDestination(t *testing.T) {
	params := ExtractParameters("navigate to 123 main st", Navigation)
	require.Equal(t, "123 main st", params["destination"])
}

func TestExtractFileURL(t *testing.T) {
	params := ExtractParameters("download file from https://example.com/data.zip", FileOperation)
	require.Equal(t, "download", params["action"])
	require.Equal(t, "https://example.com/data.zip", params["source"])
}

func TestValidateParameters(t *testing.T) {
	schemas := Schemas()
	hw := schemas[HardwareControl]

	validated, errs := ValidateParameters(hw, map[string]any{"pin": 13, "action": "on"})
	require.Empty(t, errs)
	require.Equal(t, map[string]any{"pin": 13, "action": "on"}, validated)

	_, errs = ValidateParameters(hw, map[string]any{"action": "on"})
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "pin")

	_, errs = ValidateParameters(hw, map[string]any{"pin": 99, "action": "on"})
	require.Len(t, errs, 1)

	_, errs = ValidateParameters(hw, map[string]any{"pin": 13, "action": "explode"})
	require.Len(t, errs, 1)

	// Out-of-range values still land in the validated map so the
	// caller can report them alongside the command.
	validated, errs = ValidateParameters(hw, map[string]any{"pin": 13, "action": "pwm", "value": 300})
	require.Len(t, errs, 1)
	require.Equal(t, 300, validated["value"])
}

func TestValidateParametersCoercesTypes(t *testing.T) {
	hw := Schemas()[HardwareControl]

	validated, errs := ValidateParameters(hw, map[string]any{"pin": "13", "action": "pwm", "value": float64(128)})
	require.Empty(t, errs)
	require.Equal(t, 13, validated["pin"])
	require.Equal(t, 128, validated["value"])

	_, errs = ValidateParameters(hw, map[string]any{"pin": "thirteen", "action": "on"})
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "integer")

	schema := Schema{
		Intent: SmartHome,
		Parameters: []ParameterSpec{
			{Name: "brightness", Type: "float"},
			{Name: "enabled", Type: "boolean"},
		},
	}
	validated, errs = ValidateParameters(schema, map[string]any{"brightness": "0.5", "enabled": "yes"})
	require.Empty(t, errs)
	require.Equal(t, 0.5, validated["brightness"])
	require.Equal(t, true, validated["enabled"])

	validated, _ = ValidateParameters(schema, map[string]any{"enabled": "nope"})
	require.Equal(t, false, validated["enabled"])
}

func TestValidateParametersAppliesDefaults(t *testing.T) {
	schema := Schema{
		Intent: AudioControl,
		Parameters: []ParameterSpec{
			{Name: "action", Type: "string", Required: true},
			{Name: "level", Type: "integer", Default: 50},
		},
	}

	validated, errs := ValidateParameters(schema, map[string]any{"action": "volume"})
	require.Empty(t, errs)
	require.Equal(t, 50, validated["level"])

	// Explicit values win over the default.
	validated, _ = ValidateParameters(schema, map[string]any{"action": "volume", "level": 80})
	require.Equal(t, 80, validated["level"])
}

func TestValidateParametersCollectsAllErrors(t *testing.T) {
	hw := Schemas()[HardwareControl]

	_, errs := ValidateParameters(hw, map[string]any{"pin": 99, "action": "explode", "value": 300})
	require.Len(t, errs, 3)
}

func TestTrainAndPersistModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	c := NewClassifier(zerolog.Nop(), path)
	require.False(t, c.Trained())

	examples := []TrainingExample{
		{Text: "play some music", Intent: AudioControl},
		{Text: "turn up the volume", Intent: AudioControl},
		{Text: "pause the song", Intent: AudioControl},
		{Text: "open the browser", Intent: SystemControl},
		{Text: "launch calculator", Intent: SystemControl},
		{Text: "close the app", Intent: SystemControl},
		{Text: "toggle the led on pin 5", Intent: HardwareControl},
		{Text: "read sensor on gpio 2", Intent: HardwareControl},
	}
	require.NoError(t, c.Train(examples))
	require.True(t, c.Trained())

	res := c.Classify("play music")
	require.Equal(t, AudioControl, res.Intent)

	// A fresh classifier picks the model up from disk.
	c2 := NewClassifier(zerolog.Nop(), path)
	require.True(t, c2.Trained())
	res = c2.Classify("play music")
	require.Equal(t, AudioControl, res.Intent)
}

func TestTrainRejectsEmptySet(t *testing.T) {
	c := newTestClassifier(t)
	require.Error(t, c.Train(nil))
}
