package methods

import (
	"bytes"
	"encoding/xml"
	"io/fs"
	"net/url"
	"strconv"
	"strings"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/http1"
)

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// escapeHref percent-encodes a path and escapes it for XML character data.
func escapeHref(p string) string {
	u := url.URL{Path: p}
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(u.EscapedPath()))
	return b.String()
}

func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// writePropResponse writes a multistatus response element with the live
// properties of a file.
func writePropResponse(w *chunkWriter, cfg *config.Config, href string, fi fs.FileInfo) {
	if fi.IsDir() && !strings.HasSuffix(href, "/") {
		href += "/"
	}
	modTime := fi.ModTime().UTC()

	var b bytes.Buffer
	b.WriteString("<D:response>\n")
	b.WriteString("<D:href>" + escapeHref(href) + "</D:href>\n")
	b.WriteString("<D:propstat>\n<D:prop>\n")
	b.WriteString("<D:displayname>" + escapeText(fi.Name()) + "</D:displayname>\n")
	b.WriteString("<D:creationdate>" + modTime.Format("2006-01-02T15:04:05Z") + "</D:creationdate>\n")
	b.WriteString("<D:getlastmodified>" + modTime.Format(http1.TimeFormat) + "</D:getlastmodified>\n")
	if fi.IsDir() {
		b.WriteString("<D:resourcetype><D:collection/></D:resourcetype>\n")
		b.WriteString("<D:getcontenttype>httpd/unix-directory</D:getcontenttype>\n")
	} else {
		b.WriteString("<D:resourcetype/>\n")
		b.WriteString("<D:getcontentlength>" + strconv.FormatInt(fi.Size(), 10) + "</D:getcontentlength>\n")
		b.WriteString("<D:getcontenttype>" + escapeText(cfg.MimeTypes.Lookup(fi.Name())) + "</D:getcontenttype>\n")
		b.WriteString("<D:getetag>\"" + http1.ETag(href, fi.Size(), fi.ModTime()) + "\"</D:getetag>\n")
	}
	b.WriteString("<D:supportedlock>\n")
	b.WriteString("<D:lockentry><D:lockscope><D:exclusive/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>\n")
	b.WriteString("<D:lockentry><D:lockscope><D:shared/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>\n")
	b.WriteString("</D:supportedlock>\n")
	b.WriteString("</D:prop>\n<D:status>HTTP/1.1 200 OK</D:status>\n</D:propstat>\n")
	b.WriteString("</D:response>\n")
	w.WriteString(b.String())
}
