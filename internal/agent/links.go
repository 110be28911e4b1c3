package agent

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrBadLink ссылка на вакансию не подходит для автоматического отклика.
var ErrBadLink = errors.New("недопустимая ссылка на вакансию")

// LinkLevel уровень допустимости ссылки.
type LinkLevel int

const (
	LinkSafe      LinkLevel = iota // обычная страница вакансии
	LinkSensitive                  // финансовый или государственный сервис
	LinkBlocked                    // админка, локальный адрес или не http
)

// LinkCheck итог проверки ссылки.
type LinkCheck struct {
	Level  LinkLevel
	Host   string
	Reason string
}

// sensitiveDomains на этих сайтах форм заявки не бывает, а ошибка агента стоит дорого.
var sensitiveDomains = map[string]string{
	"paypal.com":        "payment processing",
	"stripe.com":        "payment processing",
	"square.com":        "payment processing",
	"venmo.com":         "payment processing",
	"bankofamerica.com": "banking",
	"chase.com":         "banking",
	"wellsfargo.com":    "banking",
	"citibank.com":      "banking",
	"binance.com":       "cryptocurrency exchange",
	"coinbase.com":      "cryptocurrency exchange",
	"kraken.com":        "cryptocurrency exchange",
	"irs.gov":           "tax services",
}

var blockedPatterns = []string{
	"/admin",
	"/administrator",
	"/wp-admin",
	"/phpmyadmin",
	"/cpanel",
}

// CheckJobLink проверяет ссылку до постановки в очередь и перед открытием браузера.
func CheckJobLink(raw string) LinkCheck {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return LinkCheck{Level: LinkBlocked, Reason: "не удалось разобрать URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return LinkCheck{Level: LinkBlocked, Reason: "поддерживаются только http и https"}
	}

	host := strings.ToLower(parsed.Hostname())
	path := strings.ToLower(parsed.Path)
	if host == "" {
		return LinkCheck{Level: LinkBlocked, Reason: "в URL нет хоста"}
	}

	for _, pattern := range blockedPatterns {
		if strings.Contains(path, pattern) {
			return LinkCheck{Level: LinkBlocked, Host: host, Reason: "админ-панель: " + pattern}
		}
	}

	if host == "localhost" || strings.HasPrefix(host, "127.") || strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") {
		return LinkCheck{Level: LinkBlocked, Host: host, Reason: "локальный адрес"}
	}

	for domain, description := range sensitiveDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return LinkCheck{Level: LinkSensitive, Host: host, Reason: description}
		}
	}

	return LinkCheck{Level: LinkSafe, Host: host}
}

// ValidateJobLink ошибка с ErrBadLink для всего, кроме обычных страниц.
func ValidateJobLink(raw string) error {
	check := CheckJobLink(raw)
	if check.Level == LinkSafe {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrBadLink, check.Reason)
}
