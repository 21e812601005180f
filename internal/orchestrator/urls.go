package orchestrator

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/shaiso/Fabrica/internal/domain"
)

// hostedServiceMarker — маркер hosted-сервиса release management
// в хосте URL. Такие адреса указывают на сервис вне топологии
// агента и никогда не переписываются.
const hostedServiceMarker = "vsrm"

// rewriteURL нормализует URL относительно локально настроенного
// базового адреса сервера: scheme, host и port берутся из base,
// путь и query исходного URL сохраняются без изменений.
//
// Исходный URL возвращается без изменений, если:
//   - его хост содержит hostedServiceMarker (без учёта регистра)
//   - URL не удаётся распарсить (нефатально, фиксируется в логе)
func rewriteURL(raw string, base *url.URL, logger *slog.Logger) string {
	u, err := url.Parse(raw)
	if err != nil {
		logger.Warn("url rewrite skipped, unparsable url", "url", raw, "error", err)
		return raw
	}

	if strings.Contains(strings.ToLower(u.Host), hostedServiceMarker) {
		return raw
	}

	u.Scheme = base.Scheme
	u.Host = base.Host
	return u.String()
}

// normalizeURLs переписывает все URL-поля запроса на базовый адрес
// из локальной конфигурации агента:
//
//   - URL каждого сервисного подключения, чей хост совпадает
//     с хостом системного подключения
//   - well-known переменные с URL (определения задач, сервер,
//     коллекция), если они заданы
//   - URL самого системного подключения
//
// Ошибка разбора настроенного базового адреса нефатальна:
// нормализация целиком пропускается с записью в лог.
func (o *Orchestrator) normalizeURLs(job *domain.JobRequest) {
	base, err := url.Parse(o.settings.ServerURL)
	if err != nil || base.Host == "" {
		o.logger.Warn("url normalization skipped, bad configured server url",
			"server_url", o.settings.ServerURL,
			"error", err,
		)
		return
	}

	systemHost := hostOf(job.System.URL)

	for _, ep := range job.Endpoints {
		if ep.URL == "" {
			continue
		}
		if strings.EqualFold(hostOf(ep.URL), systemHost) {
			ep.URL = rewriteURL(ep.URL, base, o.logger)
		}
	}

	for _, name := range []string{
		domain.VarTaskDefinitionsURI,
		domain.VarServerURI,
		domain.VarCollectionURI,
	} {
		if val, ok := job.Variables.Get(name); ok && val != "" {
			job.Variables.Set(name, rewriteURL(val, base, o.logger))
		}
	}

	job.System.URL = rewriteURL(job.System.URL, base, o.logger)
}

// hostOf возвращает хост URL без порта ("" для нераспарсиваемого URL).
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
