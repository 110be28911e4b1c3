package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

var popupCloseSelectors = []string{
	"[role='dialog'] button[aria-label*='close' i]",
	"[role='dialog'] button[aria-label*='dismiss' i]",
	".modal button.close",
	".popup button.close",
	"[data-dismiss='modal']",
	".close-button",
	"button:has-text('×')",
	"button:has-text('✕')",
	"[aria-label='Close']",
	"#onetrust-accept-btn-handler",
}

// ClosePopups закрывает видимые модалки и cookie баннеры. Возвращает число закрытых.
// Диалоги внутри формы заявки не трогаются.
func (s *Surface) ClosePopups(ctx context.Context) int {
	p := s.getPage()
	if p == nil {
		return 0
	}

	closed := 0
	for _, selector := range popupCloseSelectors {
		if ctx.Err() != nil {
			return closed
		}
		elements, err := p.QuerySelectorAll(selector)
		if err != nil {
			continue
		}
		for _, el := range elements {
			visible, err := el.IsVisible()
			if err != nil || !visible {
				continue
			}
			inForm, err := el.Evaluate("el => !!el.closest('form')")
			if err == nil && inForm == true {
				continue
			}
			if err := el.Click(playwright.ElementHandleClickOptions{
				Timeout: playwright.Float(float64(s.cfg.ActionTimeout.Milliseconds())),
			}); err == nil {
				closed++
				p.WaitForTimeout(float64((500 * time.Millisecond).Milliseconds()))
			}
		}
	}
	if closed > 0 {
		s.log.Debug("Закрыты попапы", zap.Int("count", closed))
	}
	return closed
}

func (s *Surface) timeout() *float64 {
	return playwright.Float(float64(s.cfg.ActionTimeout.Milliseconds()))
}
