package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"autojob/internal/agent"
	"autojob/internal/cli/ui"

	"go.uber.org/zap"
)

// Opener доводит браузер до формы заявки и оставляет вкладку открытой.
type Opener interface {
	Open(ctx context.Context, link string) (agent.Tab, agent.Result, error)
}

// BrowserHandler обрабатывает команды браузера
type BrowserHandler struct {
	opener     Opener
	persistent agent.Launcher
	readLine   func() (string, error)
	out        io.Writer
	log        *zap.Logger
}

func NewBrowserHandler(opener Opener, persistent agent.Launcher, readLine func() (string, error), out io.Writer, log *zap.Logger) *BrowserHandler {
	return &BrowserHandler{opener: opener, persistent: persistent, readLine: readLine, out: out, log: log}
}

// OpenPersistent открывает браузер с сохранением профиля для ручного входа на сайты
func (h *BrowserHandler) OpenPersistent(ctx context.Context) {
	if h.persistent == nil {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Браузер не инициализирован"+ui.ColorReset)
		return
	}

	fmt.Fprintln(h.out, ui.ColorCyan+ui.IconGlobe+" Запуск браузера в persistent режиме..."+ui.ColorReset)
	tab, err := h.persistent.Launch(ctx)
	if err != nil {
		fmt.Fprintf(h.out, ui.ColorRed+ui.IconCross+" Ошибка запуска:"+ui.ColorReset+" %v\n", err)
		return
	}

	fmt.Fprintln(h.out, ui.ColorGreen+ui.IconCheckmark+" Браузер открыт с сохранением сессии"+ui.ColorReset)
	fmt.Fprintln(h.out, ui.ColorGray+"Войдите на сайты вакансий, затем используйте '"+ui.ColorYellow+"start"+ui.ColorGray+"'"+ui.ColorReset)
	h.waitAndClose(tab)
}

// Open проводит агента до формы заявки и оставляет страницу для ручной проверки
func (h *BrowserHandler) Open(ctx context.Context, link string) {
	if h.opener == nil {
		fmt.Fprintln(h.out, ui.ColorRed+ui.IconCross+" Браузер не инициализирован"+ui.ColorReset)
		return
	}
	link = strings.TrimSpace(link)
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		link = "https://" + link
	}

	fmt.Fprintf(h.out, ui.ColorCyan+ui.IconArrow+" Открытие %s..."+ui.ColorReset+"\n", link)
	tab, res, err := h.opener.Open(ctx, link)
	if tab == nil {
		fmt.Fprintf(h.out, ui.ColorRed+ui.IconCross+" Ошибка открытия:"+ui.ColorReset+" %v\n", err)
		return
	}

	switch {
	case err != nil:
		fmt.Fprintf(h.out, ui.ColorRed+ui.IconCross+" Агент остановлен:"+ui.ColorReset+" %v\n", err)
	case res.Success:
		fmt.Fprintln(h.out, ui.ColorGreen+ui.IconCheckmark+" Форма заявки открыта"+ui.ColorReset)
	default:
		fmt.Fprintf(h.out, ui.ColorYellow+ui.IconHand+" Форма не найдена: %s %s"+ui.ColorReset+"\n", res.FailureCode, res.ManualReasonText)
	}
	h.waitAndClose(tab)
}

func (h *BrowserHandler) waitAndClose(tab agent.Tab) {
	fmt.Fprintln(h.out, ui.ColorYellow+"⏎ Нажмите Enter для закрытия браузера..."+ui.ColorReset)
	if _, err := h.readLine(); err != nil {
		h.log.Debug("Ввод прерван", zap.Error(err))
	}
	if err := tab.Close(); err != nil {
		h.log.Warn("Ошибка закрытия браузера", zap.Error(err))
	}
	fmt.Fprintln(h.out, ui.ColorGray+"Браузер закрыт"+ui.ColorReset)
}
