package foraapi

import (
	"encoding/json"
	"fmt"
)

// Ring data modes of ForaO2API/ClientRingDataAES.
const (
	ModeSpO2HR   = 0
	ModeActivity = 1
	ModeSleep    = 3
)

// Lang selects the report language.
type Lang string

const (
	LangEN Lang = "en"
	LangTW Lang = "tw"
)

// Status is the envelope every FORA answer carries.
type Status struct {
	ReturnCode int    `json:"ReturnCode"`
	Message    string `json:"Message,omitempty"`
}

// Err returns a *ReturnCodeError when the backend reported a failure.
func (s Status) Err() error {
	if s.ReturnCode == 0 {
		return nil
	}
	return &ReturnCodeError{Code: s.ReturnCode, Message: s.Message}
}

// ReturnCodeError is a well-formed answer with a non-zero ReturnCode.
type ReturnCodeError struct {
	Code    int
	Message string
}

func (e *ReturnCodeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("FORA API returned code %d", e.Code)
	}
	return fmt.Sprintf("FORA API returned code %d: %s", e.Code, e.Message)
}

// RangeParams selects one user's ring data between two "YYYY-MM-DD HH:mm:ss" stamps.
type RangeParams struct {
	UserID  string `json:"user_id"`
	StartDT string `json:"start_dt"`
	EndDT   string `json:"end_dt"`
}

type ringDataRequest struct {
	RangeParams
	Mode int `json:"mode"`
}

type SpO2HRSample struct {
	MeterSN        string  `json:"meter_sn"`
	SpO2           float64 `json:"spo2"`
	HR             float64 `json:"hr"`
	Quality        int     `json:"quality"`
	HeartRateGrade int     `json:"hear_rate_grade"`
	DateTime       string  `json:"datetime"`
	D              string  `json:"d"`
}

type SpO2HRResponse struct {
	Status
	Data []SpO2HRSample `json:"Data"`
}

type DietEntry struct {
	ID       int     `json:"id"`
	DateTime string  `json:"date_time"`
	Type     int     `json:"type"`
	Content  string  `json:"content"`
	Calories float64 `json:"calo"`
	// Summary is a JSON encoded array.
	Summary string `json:"summary"`
}

type StepEntry struct {
	Duration int    `json:"duration"`
	Time     string `json:"time"`
	// State is 0 for walking, 1 for brisk walking and 2 for running.
	State int `json:"state"`
}

type ActivityDay struct {
	StepDate string `json:"step_date"`
	StepNum  int    `json:"step_num"`
	// Calorie holds [basal, active].
	Calorie   []float64   `json:"calorie"`
	Weight    float64     `json:"weight"`
	Height    float64     `json:"height"`
	BirthYear int         `json:"birth_year"`
	DietData  []DietEntry `json:"diet_data"`
	StepData  []StepEntry `json:"step_data"`
}

type ActivityResponse struct {
	Status
	Data []ActivityDay `json:"Data"`
}

// SleepSession fields that hold JSON text are decoded with ParseStageSummary and ParseSleepScore.
type SleepSession struct {
	MeterSN      string `json:"meter_sn"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	SleepDur     string `json:"sleep_dur"`
	SleepData    string `json:"sleep_data"`
	StageSummary string `json:"stage_summary"`
	SleepScore   string `json:"sleep_score"`
	SleepMvmt    string `json:"sleep_mvmt"`
	StageCount   int    `json:"stg_count"`
}

type SleepResponse struct {
	Status
	Data []SleepSession `json:"Data"`
}

type GroupLoginParams struct {
	Account  string `json:"Acct"`
	Password string `json:"Pwd"`
	Lang     Lang   `json:"Lang"`
}

type GroupLoginResponse struct {
	Status
	// AccountID is the group id used by the other web calls.
	AccountID   string `json:"AccountId"`
	Token       string `json:"Token"`
	MailAccount string `json:"MailAccount"`
	Name        string `json:"Name"`
}

// Group membership kinds.
const (
	JoinPatient    = 1
	JoinAuthorized = 2
)

type GroupUserListParams struct {
	GroupID        string `json:"group_id"`
	UserJoinStatus int    `json:"user_join_status"`
}

type GroupUser struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	MedRecNo string `json:"med_rec_no,omitempty"`
}

type GroupUserListResponse struct {
	Status
	Data []GroupUser `json:"Data"`
}

type UserFileListParams struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
}

type UserFile struct {
	Data                string `json:"Data"`
	ReportName          string `json:"report_name"`
	Email               string `json:"email"`
	AccountType         *int   `json:"account_type,omitempty"`
	UserPhoneTimeOffset *int   `json:"user_phone_time_offset,omitempty"`
}

type UserFileListResponse struct {
	Status
	Data []UserFile `json:"Data"`
}

// Analysis result modes.
const (
	AnalysisPDF  = "1"
	AnalysisData = "2"
	AnalysisNote = "5"
)

type AnalysisResultParams struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Filename string `json:"filename"`
	Mode     string `json:"mode"`
	GroupID  string `json:"group_id"`
	Lang     Lang   `json:"Lang,omitempty"`
	IsDelete string `json:"is_delete,omitempty"`
}

// ResultData accepts either a single string or an array of strings.
type ResultData []string

func (r *ResultData) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*r = ResultData{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("resultData must be a string or string array: %w", err)
	}
	*r = many
	return nil
}

type AnalysisResultResponse struct {
	Status
	ResultData ResultData `json:"resultData"`
}

type QAListParams struct {
	GroupID string `json:"group_id"`
}

type QAItem struct {
	QuestionID        int    `json:"question_id"`
	QuestionName      string `json:"question_name"`
	QuestionContent   string `json:"question_content"`
	QuestionNameEN    string `json:"question_name_en"`
	QuestionContentEN string `json:"question_content_en"`
}

type QAListResponse struct {
	Status
	Data []QAItem `json:"Data"`
}
