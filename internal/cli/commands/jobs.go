package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"autojob/internal/agent"
	"autojob/internal/cli/ui"
	"autojob/internal/database"
	"autojob/internal/scheduler"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const listLimit = 50

// JobStore очередь вакансий и журналы.
type JobStore interface {
	CreateJob(ctx context.Context, j *database.Job) error
	GetJob(ctx context.Context, id uint) (*database.Job, error)
	ListJobs(ctx context.Context, status string, limit int) ([]database.Job, error)
	ClearByStatus(ctx context.Context, status string) (int64, error)
	ListLogs(ctx context.Context, jobID uint, limit int) ([]database.JobLog, error)
	GetStepsByJobID(ctx context.Context, jobID uint, limit int) ([]database.AgentStep, error)
	FailureStats(ctx context.Context, topCodes int) (database.Stats, error)
}

// Runner подаёт отклик на одну вакансию вне очереди.
type Runner interface {
	RunJob(ctx context.Context, job *database.Job) (database.Outcome, error)
}

// JobHandler обрабатывает команды очереди вакансий
type JobHandler struct {
	repo   JobStore
	runner Runner
	out    io.Writer
	log    *zap.Logger
}

func NewJobHandler(repo JobStore, runner Runner, out io.Writer, log *zap.Logger) *JobHandler {
	return &JobHandler{repo: repo, runner: runner, out: out, log: log}
}

// Add добавляет вакансию: "<url> [компания...]".
func (h *JobHandler) Add(ctx context.Context, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Укажите ссылку на вакансию"+ui.ColorReset)
		return
	}
	link := fields[0]
	if err := agent.ValidateJobLink(link); err != nil {
		fmt.Fprintf(h.out, ui.ColorRed+ui.IconCross+" Ссылка отклонена:"+ui.ColorReset+" %v\n", err)
		return
	}
	check := agent.CheckJobLink(link)
	if check.Level == agent.LinkSensitive {
		fmt.Fprintf(h.out, ui.ColorYellow+"⚠ %s"+ui.ColorReset+"\n", check.Reason)
	}

	job := database.Job{
		Link:    link,
		Company: strings.Join(fields[1:], " "),
		Status:  database.StatusPending,
	}
	if err := h.repo.CreateJob(ctx, &job); err != nil {
		h.log.Error("Ошибка создания вакансии", zap.Error(err))
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Ошибка создания вакансии"+ui.ColorReset)
		return
	}
	fmt.Fprintf(h.out, ui.ColorGreen+ui.IconCheckmark+" Вакансия #%d добавлена в очередь"+ui.ColorReset+"\n", job.ID)
}

// List выводит вакансии, опционально только с указанным статусом.
func (h *JobHandler) List(ctx context.Context, status string) {
	status = strings.TrimSpace(status)
	if status != "" && !database.ValidStatus(status) {
		fmt.Fprintf(h.out, ui.ColorRed+ui.IconCross+" Неизвестный статус: %s"+ui.ColorReset+"\n", status)
		return
	}
	jobs, err := h.repo.ListJobs(ctx, status, listLimit)
	if err != nil {
		h.log.Error("Ошибка получения вакансий", zap.Error(err))
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Ошибка получения вакансий"+ui.ColorReset)
		return
	}
	if len(jobs) == 0 {
		fmt.Fprintln(h.out, ui.ColorGray+"Вакансий нет"+ui.ColorReset)
		return
	}

	fmt.Fprintln(h.out, "\n"+ui.ColorBold+ui.IconList+" Вакансии:"+ui.ColorReset)
	for _, j := range jobs {
		icon, color, text := ui.FormatStatus(j.Status)
		name := j.Company
		if j.Title != "" {
			name = strings.TrimSpace(name + " " + j.Title)
		}
		if name == "" {
			name = ui.Truncate(j.Link, 60)
		}
		fmt.Fprintf(h.out, "  "+ui.ColorBold+"#%-4d"+ui.ColorReset+" "+color+"%s %-16s"+ui.ColorReset+" %s\n", j.ID, icon, text, name)
		if j.FailureCode != "" {
			fmt.Fprintf(h.out, "        "+ui.ColorGray+"%s:%s"+ui.ColorReset+"\n", j.FailureClass, j.FailureCode)
		}
	}
	fmt.Fprintln(h.out)
}

// Run подаёт отклик на вакансию сразу, минуя очередь.
func (h *JobHandler) Run(ctx context.Context, idStr string) {
	job, ok := h.job(ctx, idStr)
	if !ok {
		return
	}
	if h.runner == nil {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Агент не инициализирован"+ui.ColorReset)
		return
	}

	fmt.Fprintf(h.out, ui.ColorCyan+ui.IconPlay+" Подача отклика #%d..."+ui.ColorReset+"\n", job.ID)
	out, err := h.runner.RunJob(ctx, job)
	if errors.Is(err, scheduler.ErrBusy) {
		fmt.Fprintln(h.out, ui.ColorYellow+ui.IconClock+" Очередь запущена, сначала выполните pause"+ui.ColorReset)
		return
	}
	if err != nil {
		fmt.Fprintf(h.out, ui.ColorRed+ui.IconCross+" Ошибка:"+ui.ColorReset+" %v\n", err)
		return
	}

	icon, color, text := ui.FormatStatus(out.Status)
	fmt.Fprintf(h.out, color+"%s Итог: %s"+ui.ColorReset+"\n", icon, text)
	switch {
	case out.ManualReason != "":
		fmt.Fprintf(h.out, "  "+ui.ColorGray+"%s"+ui.ColorReset+"\n", out.ManualReason)
	case out.FailReason != "":
		fmt.Fprintf(h.out, "  "+ui.ColorGray+"%s"+ui.ColorReset+"\n", out.FailReason)
	}
}

// Purge удаляет вакансии со статусом, без статуса удаляет все.
func (h *JobHandler) Purge(ctx context.Context, status string) {
	status = strings.TrimSpace(status)
	if status != "" && !database.ValidStatus(status) {
		fmt.Fprintf(h.out, ui.ColorRed+ui.IconCross+" Неизвестный статус: %s"+ui.ColorReset+"\n", status)
		return
	}
	n, err := h.repo.ClearByStatus(ctx, status)
	if err != nil {
		h.log.Error("Ошибка удаления вакансий", zap.Error(err))
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Ошибка удаления вакансий"+ui.ColorReset)
		return
	}
	fmt.Fprintf(h.out, ui.ColorGreen+ui.IconCheckmark+" Удалено: %d"+ui.ColorReset+"\n", n)
}

// Stats выводит сводку неудач по классам и кодам.
func (h *JobHandler) Stats(ctx context.Context) {
	stats, err := h.repo.FailureStats(ctx, 8)
	if err != nil {
		h.log.Error("Ошибка получения статистики", zap.Error(err))
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Ошибка получения статистики"+ui.ColorReset)
		return
	}
	fmt.Fprintf(h.out, "\n"+ui.ColorBold+ui.IconChart+" Неудач: %d"+ui.ColorReset+"\n", stats.Total)
	if stats.Total == 0 {
		return
	}
	for _, class := range slices.Sorted(maps.Keys(stats.ByClass)) {
		fmt.Fprintf(h.out, "  "+ui.ColorCyan+"%-20s"+ui.ColorReset+" %d\n", class, stats.ByClass[class])
	}
	fmt.Fprintln(h.out, ui.ColorYellow+"Частые коды:"+ui.ColorReset)
	for _, c := range stats.TopCode {
		fmt.Fprintf(h.out, "  %-48s %d\n", c.Key, c.Count)
	}
	fmt.Fprintln(h.out)
}

func (h *JobHandler) job(ctx context.Context, idStr string) (*database.Job, bool) {
	return loadJob(ctx, h.repo, h.out, idStr)
}

func parseID(idStr string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func loadJob(ctx context.Context, repo JobStore, out io.Writer, idStr string) (*database.Job, bool) {
	id, ok := parseID(idStr)
	if !ok {
		fmt.Fprintln(out, ui.ColorRed+ui.IconCross+" Неверный ID вакансии"+ui.ColorReset)
		return nil, false
	}
	job, err := repo.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Fprintln(out, ui.ColorRed+ui.IconCross+" Вакансия не найдена"+ui.ColorReset)
		} else {
			fmt.Fprintf(out, ui.ColorRed+ui.IconCross+" Ошибка получения вакансии:"+ui.ColorReset+" %v\n", err)
		}
		return nil, false
	}
	return job, true
}
