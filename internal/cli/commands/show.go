package commands

import (
	"context"
	"fmt"
	"io"

	"autojob/internal/cli/ui"

	"go.uber.org/zap"
)

const diagnosticSteps = 20

// ShowHandler обрабатывает команды просмотра деталей
type ShowHandler struct {
	repo JobStore
	out  io.Writer
	log  *zap.Logger
}

func NewShowHandler(repo JobStore, out io.Writer, log *zap.Logger) *ShowHandler {
	return &ShowHandler{repo: repo, out: out, log: log}
}

// Show выводит диагностику вакансии и последние шаги агента
func (h *ShowHandler) Show(ctx context.Context, idStr string) {
	job, ok := loadJob(ctx, h.repo, h.out, idStr)
	if !ok {
		return
	}

	_, color, statusText := ui.FormatStatus(job.Status)

	fmt.Fprintf(h.out, "\n"+ui.ColorBold+"=== Вакансия #%d ==="+ui.ColorReset+"\n", job.ID)
	fmt.Fprintf(h.out, ui.ColorCyan+ui.IconGlobe+" Ссылка:"+ui.ColorReset+" %s\n", job.Link)
	if job.Company != "" || job.Title != "" {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconDocument+" Вакансия:"+ui.ColorReset+" %s %s\n", job.Company, job.Title)
	}
	fmt.Fprintf(h.out, ui.ColorCyan+ui.IconChart+" Статус:"+ui.ColorReset+" "+color+"%s"+ui.ColorReset+"\n", statusText)
	fmt.Fprintf(h.out, ui.ColorCyan+ui.IconTime+" Создана:"+ui.ColorReset+" %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.ResumeUsed != "" {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconDocument+" Резюме:"+ui.ColorReset+" %s\n", job.ResumeUsed)
	}
	if job.FailureClass != "" || job.FailureCode != "" {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconCross+" Неудача:"+ui.ColorReset+" %s / %s (повторов %d)\n", job.FailureClass, job.FailureCode, job.RetryCount)
	}
	if job.ManualReason != "" {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconHand+" Нужен человек:"+ui.ColorReset+" %s\n", job.ManualReason)
	}
	if job.FailReason != "" {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconChat+" Причина:"+ui.ColorReset+" %s\n", job.FailReason)
	}
	if job.LastErrorSnippet != "" {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconChat+" Последняя ошибка:"+ui.ColorReset+" %s\n", ui.Truncate(job.LastErrorSnippet, 200))
	}
	if job.LastOutcomeAt != nil {
		fmt.Fprintf(h.out, ui.ColorCyan+ui.IconTime+" Последний исход:"+ui.ColorReset+" %s в %s\n", job.LastOutcomeClass, job.LastOutcomeAt.Format("15:04:05"))
	}

	steps, err := h.repo.GetStepsByJobID(ctx, job.ID, diagnosticSteps)
	if err != nil {
		h.log.Error("Ошибка получения шагов", zap.Error(err))
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Ошибка получения шагов"+ui.ColorReset)
		return
	}

	if len(steps) > 0 {
		fmt.Fprintf(h.out, "\n"+ui.ColorYellow+ui.IconLoop+" Последние шаги (%d):"+ui.ColorReset+"\n", len(steps))
		for _, step := range steps {
			fmt.Fprintf(h.out, ui.ColorBold+"[Шаг %d]"+ui.ColorReset+" "+ui.ColorCyan+"%s"+ui.ColorReset, step.StepNo, step.ActionType)
			if step.TargetSelector != "" {
				fmt.Fprintf(h.out, " → "+ui.ColorYellow+"%s"+ui.ColorReset, ui.Truncate(step.TargetSelector, 60))
			}
			if step.OutcomeClass != "" {
				fmt.Fprintf(h.out, " "+ui.ColorGray+"(%s)"+ui.ColorReset, step.OutcomeClass)
			}
			fmt.Fprintln(h.out)
			if step.Reasoning != "" {
				fmt.Fprintf(h.out, "  "+ui.ColorGray+"%s"+ui.ColorReset+"\n", ui.Truncate(step.Reasoning, 100))
			}
		}
	}
	fmt.Fprintln(h.out)
}
