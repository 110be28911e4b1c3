package database

import "time"

// Статусы вакансии в очереди.
const (
	StatusPending        = "pending"
	StatusInProgress     = "in_progress"
	StatusApplied        = "applied"
	StatusManualRequired = "manual_required"
	StatusFailed         = "failed"
	StatusPaused         = "paused"
)

// ValidStatus проверяет, что статус известен.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusApplied, StatusManualRequired, StatusFailed, StatusPaused:
		return true
	}
	return false
}

// Job вакансия, на которую агент подаёт отклик.
type Job struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Company          string     `gorm:"type:varchar(255)" json:"company"`
	Title            string     `gorm:"type:varchar(255)" json:"title"`
	Link             string     `gorm:"type:text;not null" json:"link"`
	Status           string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	ResumeUsed       string     `gorm:"type:text" json:"resume_used"`          // Загруженное резюме
	FailReason       string     `gorm:"type:text" json:"fail_reason"`          // Причина ошибки (failed)
	ManualReason     string     `gorm:"type:text" json:"manual_reason"`        // Почему нужен человек
	FailureClass     string     `gorm:"type:varchar(64)" json:"failure_class"` // validation_error, external_blocked ...
	FailureCode      string     `gorm:"type:varchar(128)" json:"failure_code"`
	RetryCount       int        `gorm:"not null;default:0" json:"retry_count"`
	LastErrorSnippet string     `gorm:"type:text" json:"last_error_snippet"`
	LastOutcomeClass string     `gorm:"type:varchar(64)" json:"last_outcome_class"`
	LastOutcomeAt    *time.Time `json:"last_outcome_at"`
	ApplyTime        *time.Time `json:"apply_time"` // Время завершения обработки
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// JobLog запись журнала обработки вакансии.
type JobLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobID     uint      `gorm:"index;not null" json:"job_id"`
	Level     string    `gorm:"type:varchar(16);not null;default:'info'" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AgentStep один шаг цикла агента.
type AgentStep struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	JobID          uint      `gorm:"index;not null" json:"job_id"`
	SessionID      string    `gorm:"type:varchar(64)" json:"session_id"`
	StepNo         int       `gorm:"not null" json:"step_no"`
	ActionType     string    `gorm:"type:varchar(32);not null" json:"action_type"` // click, fill, upload ...
	TargetRef      string    `gorm:"type:varchar(32)" json:"target_ref"`           // e12
	TargetSelector string    `gorm:"type:text" json:"target_selector"`             // Текстовый селектор
	Value          string    `gorm:"type:text" json:"value"`                       // Очищенное значение
	Reasoning      string    `gorm:"type:text" json:"reasoning"`                   // Обоснование от LLM
	Result         string    `gorm:"type:text" json:"result"`
	OutcomeClass   string    `gorm:"type:varchar(64)" json:"outcome_class"`
	Fingerprint    string    `gorm:"type:varchar(64)" json:"fingerprint"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// LlmLog лог запроса к LLM.
type LlmLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	JobID        *uint     `gorm:"index" json:"job_id"`
	StepID       *uint     `gorm:"index" json:"step_id"`
	Role         string    `gorm:"type:varchar(32);not null" json:"role"` // planner, intent, gate_confirm
	PromptText   string    `gorm:"type:text;not null" json:"prompt_text"`
	ResponseText string    `gorm:"type:text" json:"response_text"`
	Model        string    `gorm:"type:varchar(64)" json:"model"`
	TokensUsed   int       `json:"tokens_used"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Outcome итог обработки вакансии, который сохраняет планировщик.
type Outcome struct {
	Status           string
	ResumeUsed       string
	FailReason       string
	ManualReason     string
	FailureClass     string
	FailureCode      string
	RetryCount       int
	LastErrorSnippet string
	LastOutcomeClass string
	LastOutcomeAt    *time.Time
}
