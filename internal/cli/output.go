package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
)

// Output форматирует записи журнала jobs: таблица для чтения
// человеком или JSON как есть для pipe в jq.
type Output struct {
	jsonMode bool
	w        io.Writer
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
	}
}

// Jobs выводит список записей журнала.
func (o *Output) Jobs(jobs []JobResponse) {
	if o.jsonMode {
		o.json(jobs)
		return
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUEST_ID\tNAME\tHOST\tRESULT\tSTARTED\tTOOK")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.RequestID, j.JobName, j.HostType,
			resultCell(j.Result), timeCell(j.StartedAt), tookCell(j),
		)
	}
	tw.Flush()
}

// Job выводит одну запись журнала в развёрнутом виде.
func (o *Output) Job(job *JobResponse) {
	if o.jsonMode {
		o.json(job)
		return
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Request ID:\t%s\n", job.RequestID)
	fmt.Fprintf(tw, "Job ID:\t%s\n", job.JobID)
	fmt.Fprintf(tw, "Name:\t%s\n", job.JobName)
	fmt.Fprintf(tw, "Host type:\t%s\n", job.HostType)
	fmt.Fprintf(tw, "Result:\t%s\n", resultCell(job.Result))
	fmt.Fprintf(tw, "Started:\t%s\n", timeCell(job.StartedAt))
	if job.FinishedAt != "" {
		fmt.Fprintf(tw, "Finished:\t%s\n", timeCell(job.FinishedAt))
		fmt.Fprintf(tw, "Took:\t%s\n", tookCell(*job))
	}
	if job.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", job.Error)
	}
	tw.Flush()
}

func (o *Output) json(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// resultCell: пустой результат в журнале — ещё не завершённый job.
func resultCell(result string) string {
	if result == "" {
		return "RUNNING"
	}
	return result
}

// timeCell приводит timestamp API к компактному локальному виду.
func timeCell(raw string) string {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

// tookCell — длительность выполнения завершённого job.
func tookCell(j JobResponse) string {
	if j.FinishedAt == "" {
		return "-"
	}
	start, err := time.Parse(time.RFC3339, j.StartedAt)
	if err != nil {
		return "-"
	}
	end, err := time.Parse(time.RFC3339, j.FinishedAt)
	if err != nil {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}
