package browser

import (
	"sync"
	"time"

	"autojob/internal/logger"
	"autojob/internal/page"

	"github.com/playwright-community/playwright-go"
)

// Config параметры запуска браузера.
type Config struct {
	Headless        bool
	UserDataDir     string
	BrowsersPath    string
	Display         string
	Engine          string
	Timeout         time.Duration
	NavigateTimeout time.Duration
	ActionTimeout   time.Duration
}

var _ page.Surface = (*Surface)(nil)

// Surface вкладка Playwright, реализующая page.Surface.
type Surface struct {
	mu      sync.RWMutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	cfg     Config
	log     *logger.Zap
}
