package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/bloodlens/internal/analysis"
)

func TestExtract_PlainText(t *testing.T) {
	e := NewExtractor(0)
	input := "CBC Panel\r\n\r\n\r\nHemoglobin   11.2 g/dL  LOW\r\nGlucose 130 mg/dL HIGH\n\n"
	got, err := e.Extract(context.Background(), []byte(input))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "CBC Panel\nHemoglobin   11.2 g/dL  LOW\nGlucose 130 mg/dL HIGH"
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

func TestExtract_Empty(t *testing.T) {
	e := NewExtractor(0)
	_, err := e.Extract(context.Background(), nil)
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
	if analysis.KindOf(err) != analysis.KindUnreadableDocument {
		t.Errorf("KindOf = %q, want %q", analysis.KindOf(err), analysis.KindUnreadableDocument)
	}
}

func TestExtract_WhitespaceOnly(t *testing.T) {
	e := NewExtractor(0)
	_, err := e.Extract(context.Background(), []byte("   \n\n\t\n"))
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
}

func TestExtract_UnsupportedBinary(t *testing.T) {
	e := NewExtractor(0)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	_, err := e.Extract(context.Background(), png)
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
	if !strings.Contains(err.Error(), "image/png") {
		t.Errorf("error %q should name the detected type", err.Error())
	}
}

func TestExtract_MalformedPDF(t *testing.T) {
	e := NewExtractor(0)
	data := []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> garbage without xref\n%%EOF")
	_, err := e.Extract(context.Background(), data)
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
}

// buildPDF writes a minimal PDF with one Helvetica text line per page. An
// empty string produces a page with no text.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	nObjs := 3 + 2*len(pages)
	offsets := make([]int, nObjs+1)
	obj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		page, content := 4+2*i, 5+2*i
		obj(page, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", content))
		stream := "q Q"
		if text != "" {
			stream = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		obj(content, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", nObjs+1)
	for n := 1; n <= nObjs; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", nObjs+1, xref)
	return buf.Bytes()
}

func TestExtract_PDF(t *testing.T) {
	tests := []struct {
		name     string
		maxPages int
		pages    []string
		want     []string
		notWant  string
		wantErr  bool
	}{
		{
			name:  "two pages",
			pages: []string{"Glucose 90", "Cholesterol HIGH 260"},
			want:  []string{"Page 1", "Glucose 90", "Page 2", "Cholesterol HIGH 260"},
		},
		{
			name:    "blank page skipped",
			pages:   []string{"Hemoglobin 13.9", ""},
			want:    []string{"Page 1", "Hemoglobin 13.9"},
			notWant: "Page 2",
		},
		{
			name:     "over page limit",
			maxPages: 1,
			pages:    []string{"Glucose 90", "Cholesterol HIGH 260"},
			wantErr:  true,
		},
		{
			name:    "no text at all",
			pages:   []string{"", ""},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewExtractor(tt.maxPages).Extract(context.Background(), buildPDF(tt.pages...))
			if tt.wantErr {
				if !errors.Is(err, ErrUnreadableDocument) {
					t.Fatalf("err = %v, text = %q; want ErrUnreadableDocument", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got != Clean(got) {
				t.Errorf("text is not cleaned: %q", got)
			}
			rest := got
			for _, w := range tt.want {
				i := strings.Index(rest, w)
				if i < 0 {
					t.Fatalf("text %q missing %q (in order)", got, w)
				}
				rest = rest[i+len(w):]
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("text %q should not contain %q", got, tt.notWant)
			}
		})
	}
}

func TestExtract_Cancelled(t *testing.T) {
	e := NewExtractor(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Extract(ctx, []byte("Glucose 90"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"a\n\n\nb", "a\nb"},
		{"a\r\nb\r\n", "a\nb"},
		{"  a  \n \n b\t", "a\n b"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
