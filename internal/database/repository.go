package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) CreateJob(ctx context.Context, j *Job) error {
	if j.Status == "" {
		j.Status = StatusPending
	}
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *JobRepository) GetJob(ctx context.Context, id uint) (*Job, error) {
	var job Job
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs возвращает последние вакансии, при пустом status без фильтра.
func (r *JobRepository) ListJobs(ctx context.Context, status string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 200
	}
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimNextPending забирает самую старую pending вакансию и переводит её в in_progress.
// Возвращает nil, nil если очередь пуста.
func (r *JobRepository) ClaimNextPending(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", StatusPending).
			Order("created_at ASC, id ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&job).Update("status", StatusInProgress).Error; err != nil {
			return err
		}
		job.Status = StatusInProgress
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки вакансии из очереди: %w", err)
	}
	return claimed, nil
}

// SaveOutcome сохраняет итог обработки и пакет диагностики.
func (r *JobRepository) SaveOutcome(ctx context.Context, id uint, o Outcome) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":             o.Status,
		"fail_reason":        o.FailReason,
		"manual_reason":      o.ManualReason,
		"failure_class":      o.FailureClass,
		"failure_code":       o.FailureCode,
		"retry_count":        o.RetryCount,
		"last_error_snippet": o.LastErrorSnippet,
		"last_outcome_class": o.LastOutcomeClass,
		"last_outcome_at":    o.LastOutcomeAt,
		"apply_time":         &now,
	}
	if o.ResumeUsed != "" {
		updates["resume_used"] = o.ResumeUsed
	}
	return r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(updates).Error
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Update("status", status).Error
}

// ResetInProgress возвращает в очередь вакансии, брошенные при остановке процесса.
func (r *JobRepository) ResetInProgress(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("status = ?", StatusInProgress).
		Update("status", StatusPending)
	return res.RowsAffected, res.Error
}

func (r *JobRepository) DeleteJob(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&Job{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearByStatus удаляет все вакансии со статусом, при пустом status удаляет всё.
func (r *JobRepository) ClearByStatus(ctx context.Context, status string) (int64, error) {
	q := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	res := q.Delete(&Job{})
	return res.RowsAffected, res.Error
}

func (r *JobRepository) AppendLog(ctx context.Context, l *JobLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *JobRepository) ListLogs(ctx context.Context, jobID uint, limit int) ([]JobLog, error) {
	if limit <= 0 {
		limit = 500
	}
	var logs []JobLog
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (r *JobRepository) CreateStep(ctx context.Context, s *AgentStep) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetStepsByJobID последние шаги в хронологическом порядке.
func (r *JobRepository) GetStepsByJobID(ctx context.Context, jobID uint, limit int) ([]AgentStep, error) {
	if limit <= 0 {
		limit = 100
	}
	var steps []AgentStep
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id DESC").
		Limit(limit).
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}

// LogLLMRequest сохраняет запрос к LLM. Текст приходит уже очищенным.
func (r *JobRepository) LogLLMRequest(ctx context.Context, jobID *uint, stepID *uint, role, promptText, responseText, model string, tokensUsed int) error {
	return r.db.WithContext(ctx).Create(&LlmLog{
		JobID:        jobID,
		StepID:       stepID,
		Role:         role,
		PromptText:   promptText,
		ResponseText: responseText,
		Model:        model,
		TokensUsed:   tokensUsed,
	}).Error
}

func (r *JobRepository) ListLLMLogs(ctx context.Context, jobID uint, limit int) ([]LlmLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []LlmLog
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// FailureStats статистика неудачных откликов.
func (r *JobRepository) FailureStats(ctx context.Context, topCodes int) (Stats, error) {
	var jobs []Job
	err := r.db.WithContext(ctx).
		Select("id", "status", "failure_class", "failure_code").
		Where("status IN ?", []string{StatusFailed, StatusManualRequired}).
		Find(&jobs).Error
	if err != nil {
		return Stats{}, err
	}
	return AggregateFailures(jobs, topCodes), nil
}
