package status

import (
	"html/template"
	"time"
)

const timeLayout = "20060102150405"

var pageTemplate = template.Must(template.New("status").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(timeLayout)
	},
	"gmt": func(t time.Time) string {
		return t.UTC().Format(time.RFC1123)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.Server}} Status</title>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <style type="text/css">
    body,td,th { font-size:14px; }
  </style>
</head>
<body>
<h1>{{.Server}} Status</h1>
<dl>
  <dt>Current Time: {{gmt .Now}}, Start Time: {{gmt .Started}}</dt>
  <dt>Total Connections: {{.Conns}}, Total Requests: {{.Requests}}, Total Launched: {{.Launched}}, Running Servers: {{.Running}}, Working Servers: {{.Active}}</dt>
  <dt>Start Servers: {{.StartServers}}, Min Spare Servers: {{.MinSpareServers}}, Max Spare Servers: {{.MaxSpareServers}}, Max Clients: {{.MaxClients}}</dt>
</dl>
<table width="100%" border="1" cellpadding="1" cellspacing="0">
  <tr>
    <th colspan="6">Server Information</th>
    <th colspan="5">Current Connection</th>
    <th colspan="4">Request Information</th>
  </tr>
  <tr>
    <th>SNO</th>
    <th>ID</th>
    <th>Name</th>
    <th>Started</th>
    <th>Conns</th>
    <th>Reqs</th>
    <th>Status</th>
    <th>Client IP</th>
    <th>Conn Time</th>
    <th>Runs</th>
    <th>Reqs</th>
    <th>Request Information</th>
    <th>Res</th>
    <th>Req Time</th>
    <th>Runs</th>
  </tr>
{{- range .Workers}}
  <tr align="center">
    <td>{{.Slot}}</td>
    <td>{{.ID}}</td>
    <td>{{.Name}}</td>
    <td>{{stamp .Created}}</td>
    <td align="right">{{.Conns}}</td>
    <td align="right">{{.Requests}}</td>
    <td>{{.State}}</td>
    <td align="left">{{.Client}}</td>
    <td>{{stamp .ConnStart}}</td>
    <td align="right">{{.ConnSeconds}}s</td>
    <td align="right">{{.ConnRequests}}</td>
    <td align="left">{{.Request}}</td>
    <td>{{if .Code}}{{.Code}}{{end}}</td>
    <td>{{stamp .Received}}</td>
    <td align="right">{{printf "%.1f" .RequestMS}}ms</td>
  </tr>
{{- end}}
</table>
<hr>
{{.Server}}
</body>
</html>
`))
