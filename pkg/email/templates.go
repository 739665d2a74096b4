package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// AlertData feeds the alert notification template.
type AlertData struct {
	Vehicle   string
	Type      string
	Priority  string
	Message   string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

var alertTmpl = template.Must(template.New("alert").Parse(alertTemplate))

// RenderAlert builds the message for one alert, tagged with its type and
// priority.
func RenderAlert(data AlertData) (Message, error) {
	var body bytes.Buffer
	if err := alertTmpl.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render alert email: %w", err)
	}
	return Message{
		Subject: fmt.Sprintf("[%s] %s alert: %s", data.Priority, data.Type, data.Vehicle),
		Text: fmt.Sprintf("%s\n\nLocation: %.6f, %.6f\nTime: %s\n",
			data.Message, data.Latitude, data.Longitude, data.CreatedAt.UTC().Format(time.RFC3339)),
		HTML: body.String(),
		Tags: map[string]string{
			"alert_type": data.Type,
			"priority":   data.Priority,
		},
	}, nil
}

const alertTemplate = `
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>{{.Type}} alert for {{.Vehicle}}</h2>
  <p>{{.Message}}</p>
  <table>
    <tr><td>Priority</td><td>{{.Priority}}</td></tr>
    <tr><td>Location</td><td>{{printf "%.6f" .Latitude}}, {{printf "%.6f" .Longitude}}</td></tr>
    <tr><td>Time</td><td>{{.CreatedAt.UTC.Format "2006-01-02 15:04:05 MST"}}</td></tr>
  </table>
</body>
</html>
`
