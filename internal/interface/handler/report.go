package handler

import (
	"bytes"
	"html/template"

	"gateway/internal/domain"
)

var reportTemplates = template.Must(template.New("report").Parse(`
{{- define "header" -}}
<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Comment sentiment {{.}}</title></head><body>
<h1>Comment Sentiment Analysis</h1>
<h2>Repository: {{.Owner}}/{{.Repo}}, Issue: #{{.IssueID}}</h2><hr>
{{end -}}
{{- define "comment" -}}
<p><b>User:</b> {{.Comment.AuthorLogin}}<br>
<b>Comment:</b> <i>{{.Comment.Body}}</i><br>
<b>Sentiment:</b> {{.Label}} (Score: {{printf "%.2f" .Compound}})</p><hr>
{{end -}}
{{- define "footer" -}}
</body></html>
{{end -}}
`))

// HTMLReport はスコア付きコメントを到着順に並べたHTMLレポート.
// コメント本文とユーザー名はエスケープされる.
type HTMLReport struct {
	buf bytes.Buffer
}

// NewHTMLReport は domain.ReportFactory として使う.
func NewHTMLReport(req domain.AnalysisRequest) (domain.ReportBuilder, error) {
	r := &HTMLReport{}
	if err := reportTemplates.ExecuteTemplate(&r.buf, "header", req); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *HTMLReport) Append(sc domain.ScoredComment) error {
	return reportTemplates.ExecuteTemplate(&r.buf, "comment", sc)
}

func (r *HTMLReport) Finish() ([]byte, error) {
	if err := reportTemplates.ExecuteTemplate(&r.buf, "footer", nil); err != nil {
		return nil, err
	}
	return r.buf.Bytes(), nil
}

func (r *HTMLReport) ContentType() string {
	return "text/html; charset=utf-8"
}
