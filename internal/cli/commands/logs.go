package commands

import (
	"context"
	"fmt"
	"io"

	"autojob/internal/cli/ui"

	"go.uber.org/zap"
)

const logsLimit = 200

// LogsHandler обрабатывает команды просмотра логов
type LogsHandler struct {
	repo JobStore
	out  io.Writer
	log  *zap.Logger
}

func NewLogsHandler(repo JobStore, out io.Writer, log *zap.Logger) *LogsHandler {
	return &LogsHandler{repo: repo, out: out, log: log}
}

// Show выводит журнал вакансии
func (h *LogsHandler) Show(ctx context.Context, idStr string) {
	job, ok := loadJob(ctx, h.repo, h.out, idStr)
	if !ok {
		return
	}

	fmt.Fprintf(h.out, "\n"+ui.ColorBold+"=== "+ui.IconList+" Журнал вакансии #%d ==="+ui.ColorReset+"\n", job.ID)
	fmt.Fprintf(h.out, ui.ColorCyan+"Ссылка:"+ui.ColorReset+" %s\n", job.Link)
	fmt.Fprintf(h.out, ui.ColorCyan+"Статус:"+ui.ColorReset+" %s\n\n", job.Status)

	logs, err := h.repo.ListLogs(ctx, job.ID, logsLimit)
	if err != nil {
		h.log.Error("Ошибка получения журнала", zap.Error(err))
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Ошибка получения журнала"+ui.ColorReset)
		return
	}

	if len(logs) == 0 {
		fmt.Fprintln(h.out, ui.ColorGray+"Записей нет"+ui.ColorReset)
		return
	}

	for _, l := range logs {
		color := ui.ColorGreen
		switch l.Level {
		case "warn":
			color = ui.ColorYellow
		case "error":
			color = ui.ColorRed
		}
		fmt.Fprintf(h.out, ui.ColorGray+"[%s]"+ui.ColorReset+" "+color+"%-5s"+ui.ColorReset+" %s\n", l.CreatedAt.Format("15:04:05"), l.Level, l.Message)
	}
	fmt.Fprintln(h.out)
}
