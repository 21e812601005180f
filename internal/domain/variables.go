package domain

import (
	"os"
	"strconv"
	"strings"
)

// Имена well-known переменных job.
//
// Имена переменных регистронезависимы; константы приведены
// в каноническом написании.
const (
	// VarEnableAccessToken — feature flag: копировать access token
	// системного подключения в переменные job.
	VarEnableAccessToken = "system.enableAccessToken"

	// VarAccessToken — переменная, в которую копируется access token.
	VarAccessToken = "system.accessToken"

	// VarTaskDefinitionsURI — явный адрес сервера определений задач.
	VarTaskDefinitionsURI = "system.taskDefinitionsUri"

	// VarCollectionURI — URL коллекции TFS (fallback для определений задач).
	VarCollectionURI = "system.teamFoundationCollectionUri"

	// VarServerURI — URL сервера.
	VarServerURI = "system.teamFoundationServerUri"
)

// Переменные агента, заполняемые оркестратором в корневом контексте.
const (
	VarAgentID          = "agent.id"
	VarAgentName        = "agent.name"
	VarAgentMachineName = "agent.machineName"
	VarAgentHomeDir     = "agent.homeDirectory"
	VarAgentWorkFolder  = "agent.workFolder"
	VarAgentJobName     = "agent.jobName"
	VarAgentWorkingDir  = "agent.workingDirectory"
)

// Variables — переменные job.
//
// Имена регистронезависимы: Get("System.AccessToken") и
// Get("system.accesstoken") возвращают одно и то же значение.
// Ключи в map хранятся в исходном написании.
type Variables map[string]string

// Get возвращает значение переменной по регистронезависимому имени.
func (v Variables) Get(name string) (string, bool) {
	if val, ok := v[name]; ok {
		return val, true
	}
	for k, val := range v {
		if strings.EqualFold(k, name) {
			return val, true
		}
	}
	return "", false
}

// Set устанавливает значение переменной, сохраняя существующее
// написание имени, если переменная уже задана.
func (v Variables) Set(name, value string) {
	for k := range v {
		if strings.EqualFold(k, name) {
			v[k] = value
			return
		}
	}
	v[name] = value
}

// GetBool возвращает булево значение переменной.
// Отсутствующая или нераспознанная переменная — false.
func (v Variables) GetBool(name string) bool {
	val, ok := v.Get(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false
	}
	return b
}

// Expand разворачивает в строке плейсхолдеры $(name) значениями
// переменных, затем ссылки $NAME / ${NAME} — переменными окружения
// процесса. Неизвестные плейсхолдеры $(name) остаются как есть.
func (v Variables) Expand(s string) string {
	expanded := v.expandPlaceholders(s)
	return os.ExpandEnv(expanded)
}

// expandPlaceholders разворачивает плейсхолдеры вида $(name).
func (v Variables) expandPlaceholders(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "$(")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], ")")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		end += start

		name := s[start+2 : end]
		val, ok := v.Get(name)
		if !ok {
			// Неизвестная переменная — оставляем плейсхолдер
			b.WriteString(s[:end+1])
		} else {
			b.WriteString(s[:start])
			b.WriteString(val)
		}
		s = s[end+1:]
	}
}

// Clone возвращает копию набора переменных.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
