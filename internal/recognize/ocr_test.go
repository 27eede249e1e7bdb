package recognize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/constants"
)

type fakeRunner struct {
	// keyed by binary name, so one fake can answer pdftotext and tesseract
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, []byte("stub failure"), err
	}
	return []byte(f.outputs[name]), nil, nil
}

func TestRecognizeTXTIsVerbatim(t *testing.T) {
	r := NewOCRRecognizer(Config{ArtifactCacheDir: t.TempDir()}, nil)

	doc := "Name: JOHN SMITH\nDate of Birth: 03/04/1985\n"
	res, err := r.Recognize(context.Background(), []byte(doc), constants.TXT)
	require.NoError(t, err)
	assert.Equal(t, doc, res.Text)
	assert.Equal(t, "verbatim", res.Method)
	assert.Equal(t, 1, res.Pages)
	assert.NotZero(t, res.Confidence)
}

func TestRecognizePDFTextLayer(t *testing.T) {
	r := NewOCRRecognizer(Config{ArtifactCacheDir: t.TempDir()}, nil)
	r.runner = &fakeRunner{outputs: map[string]string{
		"pdftotext": "PASSPORT\nName: JANE DOE\n",
	}}

	res, err := r.Recognize(context.Background(), []byte("%PDF-1.4 stub"), constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", res.Method)
	assert.Contains(t, res.Text, "JANE DOE")
}

func TestRecognizeUnsupportedFormat(t *testing.T) {
	r := NewOCRRecognizer(Config{ArtifactCacheDir: t.TempDir()}, nil)
	r.runner = &fakeRunner{}

	_, err := r.Recognize(context.Background(), []byte("x"), constants.FileFormat("DOCX"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestParseTSV(t *testing.T) {
	tsv := strings.Join([]string{
		"level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext",
		"5\t1\t1\t1\t1\t1\t10\t20\t50\t12\t96\tName:",
		"5\t1\t1\t1\t1\t2\t70\t20\t60\t12\t92\tJOHN",
		"5\t1\t1\t1\t2\t1\t10\t40\t40\t12\t88\tDOB:",
		"5\t1\t1\t1\t2\t2\t60\t40\t80\t12\t-1\t", // empty word, skipped
	}, "\n")

	text, layout, conf := parseTSV(tsv, 1)
	assert.Equal(t, "Name: JOHN\nDOB:", text)
	require.Len(t, layout, 3)
	assert.Equal(t, "Name:", layout[0].Text)
	assert.Equal(t, float64(10), layout[0].X0)
	assert.Equal(t, float64(60), layout[0].X1)
	assert.Equal(t, 1, layout[0].Page)
	assert.Equal(t, (96+92+88)/3, conf)
}

func TestEstimateConfidence(t *testing.T) {
	assert.Zero(t, estimateConfidence("  \n "))

	// Label, date and ID-shaped content each add signal.
	rich := "Name: JOHN SMITH\nDate of Birth: 03/04/1985\nPassport No: AB1234567\n"
	assert.Greater(t, estimateConfidence(rich), estimateConfidence("some loose words"))

	// A heuristic never claims certainty.
	mrz := rich + "P<UTOSMITH<<JOHN<<<<<<<<<<<<<<<<<<<<<<<<<<<<\n" + strings.Repeat("filler line\n", 20)
	assert.LessOrEqual(t, estimateConfidence(mrz), 90)
}
