package logstream

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	processingRe = regexp.MustCompile(`Processing:\s+(\S+)`)
	leadingTagRe = regexp.MustCompile(`^\[[^\]]*\]\s+`)
)

// annotate applies the detailed-mode rewrites to line and returns the spans
// that mark inserted or shortened text:
//   - a JSON object with an "id" field adds "[ID:xxxxxxxx]" (first 8 chars)
//     after the leading bracketed timestamp, or at the start of the line
//   - "Processing: App\Jobs\SendMail" is shortened to "Processing: SendMail"
func annotate(line string) (string, []Span) {
	var spans []Span

	if id, ok := jobID(line); ok {
		tag := "[ID:" + id + "]"
		at := 0
		if loc := leadingTagRe.FindStringIndex(line); loc != nil {
			at = loc[1]
		}
		line = line[:at] + tag + " " + line[at:]
		spans = append(spans, Span{Start: at, End: at + len(tag), Cat: JobID})
	}

	if m := processingRe.FindStringSubmatchIndex(line); m != nil {
		fqn := line[m[2]:m[3]]
		short := fqn
		if i := strings.LastIndexAny(fqn, `\/`); i >= 0 && i < len(fqn)-1 {
			short = fqn[i+1:]
		}
		line = line[:m[2]] + short + line[m[3]:]
		delta := len(short) - len(fqn)
		for i := range spans {
			if spans[i].Start >= m[3] {
				spans[i].Start += delta
				spans[i].End += delta
			}
		}
		spans = append(spans, Span{Start: m[2], End: m[2] + len(short), Cat: JobClass})
	}
	return line, spans
}

// jobID looks for the first JSON object in line that decodes and carries an
// "id" field.
func jobID(line string) (string, bool) {
	for i := strings.IndexByte(line, '{'); i >= 0; {
		var payload map[string]any
		dec := json.NewDecoder(strings.NewReader(line[i:]))
		dec.UseNumber() // keep large numeric ids as written
		if err := dec.Decode(&payload); err == nil {
			if v, ok := payload["id"]; ok && v != nil {
				id := fmt.Sprint(v)
				if len(id) > 8 {
					id = id[:8]
				}
				if id != "" {
					return id, true
				}
			}
		}
		next := strings.IndexByte(line[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", false
}
