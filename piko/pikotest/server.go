// Package pikotest serves pages shaped like the PIKO web interface for tests.
package pikotest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// Device describes what the fake inverter reports
type Device struct {
	Username string
	Password string
	// Tokens is the index page content, status last
	Tokens []string
	// Consumption values including unit, e.g. "310 W". Nil serves 404.
	Consumption []string
	Serial      string
	Model       string
}

// Server is a running fake inverter
type Server struct {
	*httptest.Server
	requests atomic.Int64
}

// Requests returns the number of requests served so far
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// NewServer starts a fake inverter for d
func NewServer(d Device) *Server {
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/index.fhtml", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, IndexPage(d.Tokens))
	})
	mux.HandleFunc("/BA.fhtml", func(w http.ResponseWriter, r *http.Request) {
		if d.Consumption == nil {
			http.NotFound(w, r)
			return
		}
		writePage(w, ConsumptionPage(d.Consumption))
	})
	mux.HandleFunc("/Solar2.fhtml", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, InfoPage(d.Serial, d.Model))
	})

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != d.Username || pass != d.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="PV Webserver"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return s
}

func writePage(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(body))
}

// IndexPage renders the measurement page. Value cells are spread over the
// first seven rows of the second table, the status sits in row 8, cell 3.
func IndexPage(tokens []string) string {
	var values []string
	status := ""
	if len(tokens) > 0 {
		values = tokens[:len(tokens)-1]
		status = tokens[len(tokens)-1]
	}

	var sb strings.Builder
	sb.WriteString("<html><head><title>PV Webserver</title></head>\n<body>\n<form method=\"post\">\n<font face=\"Arial\">\n")
	sb.WriteString("<table width=\"770\"><tr><td>PIKO Wechselrichter</td></tr></table>\n")
	sb.WriteString("<table width=\"770\" border=\"0\">\n")
	for row := 0; row < 7; row++ {
		sb.WriteString("<tr>")
		for col := 0; col < 3; col++ {
			i := row*3 + col
			if i >= len(values) {
				break
			}
			fmt.Fprintf(&sb, "<td>Wert %d</td><td bgcolor=\"#FFFFFF\" align=\"right\">\n  %s</td>", i, html.EscapeString(values[i]))
		}
		sb.WriteString("<td>&nbsp;</td></tr>\n")
	}
	fmt.Fprintf(&sb, "<tr><td>Status</td><td>&nbsp;</td><td colspan=\"4\">\n  %s\n</td></tr>\n", html.EscapeString(status))
	sb.WriteString("</table>\n</font>\n</form>\n</body></html>\n")
	return sb.String()
}

// ConsumptionPage renders the BA page with one bold value per row
func ConsumptionPage(values []string) string {
	var sb strings.Builder
	sb.WriteString("<html><body><table>\n")
	for i, v := range values {
		fmt.Fprintf(&sb, "<tr><td>Messwert %d</td><td><b>%s</b></td></tr>\n", i, html.EscapeString(v))
	}
	sb.WriteString("</table></body></html>\n")
	return sb.String()
}

// InfoPage renders the info page carrying serial number and model
func InfoPage(serial, model string) string {
	return fmt.Sprintf(`<html><body>
<form>
<font face="Arial">
<table>
<tr><td>Info</td></tr>
<tr><td>Seriennummer</td><td>&nbsp;</td><td>%s</td></tr>
</table>
</font>
<table>
<tr><td>&nbsp;</td></tr>
<tr><td>Typ</td><td><font size="4">%s</font><font size="2">Wechselrichter</font></td></tr>
</table>
</form>
</body></html>
`, html.EscapeString(serial), html.EscapeString(model))
}
