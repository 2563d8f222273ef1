package foraapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StageSummary is the decoded stage_summary of a sleep session.
type StageSummary struct {
	TotalMinutes float64 `json:"totalMinutes"`
	DeepRatio    float64 `json:"deepRatio"`
	LightRatio   float64 `json:"lightRatio"`
	RemRatio     float64 `json:"remRatio"`
	AwakeRatio   float64 `json:"awakeRatio"`
}

// SleepScore is the decoded sleep_score of a sleep session.
type SleepScore struct {
	TotalScore          float64 `json:"totalScore"`
	TotalTimeScore      float64 `json:"totalTimeScore"`
	DeepSleepScore      float64 `json:"deepSleepScore"`
	AwakeRatioScore     float64 `json:"awakeRatioScore"`
	BodyQuietScore      float64 `json:"bodyQuietScore"`
	LightDeepRatioScore float64 `json:"lightDeepRatioScore"`
	BodyRestlessIndex   float64 `json:"bodyRestlessIndex"`
	BodyRestlessScore   float64 `json:"bodyRestlessScore"`
	ApneaScore          float64 `json:"apneaScore"`
}

// HRV is the heart rate variability summary of an analysis data row.
type HRV struct {
	HeartRate float64 `json:"heartRate"`
	SDNN      float64 `json:"sdnn"`
	LF        float64 `json:"lf"`
	HF        float64 `json:"hf"`
	LFHFRatio float64 `json:"lfHfRatio"`
}

// BHRV is the breathing HRV summary of an analysis data row.
type BHRV struct {
	Duration   float64 `json:"duration"`
	HeartRate  float64 `json:"heartRate"`
	Coherence  float64 `json:"coherence"`
	Resonance  float64 `json:"resonance"`
	BreathRate float64 `json:"breathRate"`
}

// numbers decodes a JSON number array. Missing positions read as 0.
type numbers []float64

func (n numbers) at(i int) float64 {
	if i < len(n) {
		return n[i]
	}
	return 0
}

func parseNumberArray(field, s string) (numbers, error) {
	var out numbers
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return out, nil
}

// ParseStageSummary decodes "[total, deep, light, rem, awake]".
func ParseStageSummary(s string) (*StageSummary, error) {
	v, err := parseNumberArray("stage_summary", s)
	if err != nil {
		return nil, err
	}
	return &StageSummary{
		TotalMinutes: v.at(0),
		DeepRatio:    v.at(1),
		LightRatio:   v.at(2),
		RemRatio:     v.at(3),
		AwakeRatio:   v.at(4),
	}, nil
}

// ParseSleepScore decodes the nine element sleep_score array.
func ParseSleepScore(s string) (*SleepScore, error) {
	v, err := parseNumberArray("sleep_score", s)
	if err != nil {
		return nil, err
	}
	return &SleepScore{
		TotalScore:          v.at(0),
		TotalTimeScore:      v.at(1),
		DeepSleepScore:      v.at(2),
		AwakeRatioScore:     v.at(3),
		BodyQuietScore:      v.at(4),
		LightDeepRatioScore: v.at(5),
		BodyRestlessIndex:   v.at(6),
		BodyRestlessScore:   v.at(7),
		ApneaScore:          v.at(8),
	}, nil
}

// splitRow parses the first comma separated row. Unparsable cells read as 0.
func splitRow(rows []string) (numbers, bool) {
	if len(rows) == 0 || rows[0] == "" {
		return nil, false
	}
	cells := strings.Split(rows[0], ",")
	out := make(numbers, len(cells))
	for i, cell := range cells {
		if f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			out[i] = f
		}
	}
	return out, true
}

// ParseHRV reads the HRV columns of the first analysis row.
func ParseHRV(resultData []string) (*HRV, bool) {
	v, ok := splitRow(resultData)
	if !ok {
		return nil, false
	}
	return &HRV{
		HeartRate: v.at(12),
		SDNN:      v.at(0),
		LF:        v.at(5),
		HF:        v.at(6),
		LFHFRatio: v.at(9),
	}, true
}

// ParseBHRV reads the breathing HRV columns of the first analysis row.
func ParseBHRV(resultData []string) (*BHRV, bool) {
	v, ok := splitRow(resultData)
	if !ok {
		return nil, false
	}
	return &BHRV{
		Duration:   v.at(19),
		HeartRate:  v.at(12),
		Coherence:  v.at(13),
		Resonance:  v.at(14),
		BreathRate: v.at(17),
	}, true
}

// SleepImageURL builds base/resultData/filename_<lang>.png. Only LangTW selects the
// Chinese rendering.
func SleepImageURL(base, resultData, filename string, lang Lang) string {
	suffix := "_en"
	if lang == LangTW {
		suffix = "_tw"
	}
	return strings.TrimRight(base, "/") + "/" + resultData + "/" + filename + suffix + ".png"
}
