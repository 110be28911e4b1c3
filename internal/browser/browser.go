package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autojob/internal/logger"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

var errNotLaunched = errors.New("браузер не запущен")

func New(cfg Config, log *logger.Zap) *Surface {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.NavigateTimeout == 0 {
		cfg.NavigateTimeout = 30 * time.Second
	}
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = 1500 * time.Millisecond
	}
	if cfg.Engine == "" {
		cfg.Engine = "chromium"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Surface{cfg: cfg, log: log}
}

// Open запускает браузер и возвращает готовую вкладку.
func Open(ctx context.Context, cfg Config, log *logger.Zap) (*Surface, error) {
	s := New(cfg, log)
	if err := s.Launch(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Surface) getPage() playwright.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

func (s *Surface) setPage(p playwright.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = p
	p.SetDefaultTimeout(float64(s.cfg.Timeout.Milliseconds()))
}

func (s *Surface) browserArgs() []string {
	return []string{
		"--no-sandbox",
	}
}

func (s *Surface) envMap() map[string]string {
	if s.cfg.Display != "" {
		return map[string]string{
			"DISPLAY": s.cfg.Display,
		}
	}
	return nil
}

func (s *Surface) engine() playwright.BrowserType {
	if s.cfg.Engine == "firefox" {
		return s.pw.Firefox
	}
	return s.pw.Chromium
}

func (s *Surface) launchPersistent() error {
	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(s.cfg.Headless),
		Args:     s.browserArgs(),
	}
	if env := s.envMap(); env != nil {
		opts.Env = env
	}
	if s.cfg.BrowsersPath != "" {
		opts.ExecutablePath = playwright.String(s.cfg.BrowsersPath)
	}

	bctx, err := s.engine().LaunchPersistentContext(s.cfg.UserDataDir, opts)
	if err != nil {
		return fmt.Errorf("запуск persistent контекста: %w", err)
	}

	s.mu.Lock()
	s.context = bctx
	s.mu.Unlock()

	var p playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		p = pages[0]
	} else {
		p, err = bctx.NewPage()
		if err != nil {
			return fmt.Errorf("новая вкладка: %w", err)
		}
	}
	s.setPage(p)
	return nil
}

func (s *Surface) launchStandard() error {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.cfg.Headless),
		Args:     s.browserArgs(),
	}
	if env := s.envMap(); env != nil {
		opts.Env = env
	}
	if s.cfg.BrowsersPath != "" {
		opts.ExecutablePath = playwright.String(s.cfg.BrowsersPath)
	}

	br, err := s.engine().Launch(opts)
	if err != nil {
		return fmt.Errorf("запуск %s: %w", s.cfg.Engine, err)
	}

	s.mu.Lock()
	s.browser = br
	s.mu.Unlock()

	p, err := br.NewPage()
	if err != nil {
		return fmt.Errorf("новая вкладка: %w", err)
	}
	s.setPage(p)
	return nil
}

// Launch поднимает драйвер и открывает вкладку. С UserDataDir профиль сохраняется между запусками.
func (s *Surface) Launch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("запуск playwright: %w", err)
	}
	s.pw = pw

	if s.cfg.UserDataDir != "" {
		err = s.launchPersistent()
	} else {
		err = s.launchStandard()
	}
	if err != nil {
		return err
	}
	s.log.Info("Браузер запущен",
		zap.String("engine", s.cfg.Engine),
		zap.Bool("headless", s.cfg.Headless),
		zap.Bool("persistent", s.cfg.UserDataDir != ""))
	return nil
}

func (s *Surface) URL() string {
	p := s.getPage()
	if p == nil {
		return ""
	}
	return p.URL()
}

// Navigate переходит по адресу и ждёт domcontentloaded. Отмена ctx прерывает ожидание.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	p := s.getPage()
	if p == nil {
		return errNotLaunched
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(s.cfg.NavigateTimeout.Milliseconds())),
		})
		errChan <- err
	}()

	select {
	case <-navCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigate timeout after %v", s.cfg.NavigateTimeout)
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	s.ClosePopups(ctx)
	return nil
}

func (s *Surface) Reload(ctx context.Context) error {
	p := s.getPage()
	if p == nil {
		return errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.cfg.NavigateTimeout.Milliseconds())),
	})
	return err
}

func (s *Surface) VisibleText(ctx context.Context) (string, error) {
	p := s.getPage()
	if p == nil {
		return "", errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(float64(s.cfg.Timeout.Milliseconds())),
	})
}

func (s *Surface) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p := s.getPage()
	if p == nil {
		return nil, errNotLaunched
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			return err
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			return err
		}
	}
	if s.pw != nil {
		return s.pw.Stop()
	}
	return nil
}
