package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCSV(t *testing.T) {
	src := `category,text,weight,options,id
EPI,Operadores usam capacete,5,Conforme=10|Não Conforme=0,
Ordem,"Corredores desobstruídos, sinalizados",1,Sim=10|Não=0,ord-1
,,,,
`
	c, err := DecodeCSV("Segurança", strings.NewReader(src))

	require.NoError(t, err)
	assert.Equal(t, "Segurança", c.Name)
	require.Len(t, c.Questions, 2)
	assert.Equal(t, 5.0, c.Questions[0].Weight)
	assert.Equal(t, []OptionRow{{Label: "Conforme", Value: 10}, {Label: "Não Conforme", Value: 0}}, c.Questions[0].Options)
	assert.Equal(t, "Corredores desobstruídos, sinalizados", c.Questions[1].Text)
	assert.Equal(t, "ord-1", c.Questions[1].ID)
}

func TestDecodeCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing column", "category,text,weight\nEPI,x,1\n", `missing column "options"`},
		{"bad weight", "category,text,weight,options\nEPI,x,five,A=1\n", "line 2"},
		{"bad option", "category,text,weight,options\nEPI,x,1,Conforme\n", "Label=value"},
		{"bad option value", "category,text,weight,options\nEPI,x,1,A=ten\n", "not a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCSV("t", strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodeCSV_FeedsBuilder(t *testing.T) {
	src := "category,text,weight,options\nEPI,Capacete,5,Conforme=10|NC=0\nEPI,Luvas,2.5,Conforme=10|NC=0\n"
	c, err := DecodeCSV("EPI", strings.NewReader(src))
	require.NoError(t, err)

	tpl, violations := newTestBuilder().BuildFromRows(c)

	assert.Nil(t, tpl)
	require.Len(t, violations, 1)
	assert.Equal(t, "questions[1].weight", violations[0].Field)
}

func TestDecodeCSV_NonFiniteNumbersRejectedByBuilder(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"huge weight", "category,text,weight,options\nA,q1,1e20,Sim=10|Nao=0\n", "questions[0].weight"},
		{"infinite option", "category,text,weight,options\nA,q1,5,Sim=Inf|Nao=0\n", "questions[0].options[0].value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeCSV("t", strings.NewReader(tt.src))
			require.NoError(t, err)

			tpl, violations := newTestBuilder().BuildFromRows(c)

			assert.Nil(t, tpl)
			require.Len(t, violations, 1)
			assert.Equal(t, tt.field, violations[0].Field)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	src := `{"name":"Extraído","questions":[{"category":"EPI","text":"Capacete","weight":4,"options":[{"label":"Sim","value":10},{"label":"Não","value":0}]}]}`

	c, err := DecodeJSON(strings.NewReader(src))

	require.NoError(t, err)
	assert.Equal(t, "Extraído", c.Name)
	require.Len(t, c.Questions, 1)
	assert.Equal(t, 4.0, c.Questions[0].Weight)
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epi.yaml")
	src := `name: Checklist EPI
questions:
  - id: epi-1
    category: EPI
    text: Capacete
    weight: 5
    options:
      - {label: Conforme, value: 10}
      - {label: Não Conforme, value: 0}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	c, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, "Checklist EPI", c.Name)
	require.Len(t, c.Questions, 1)
	assert.Equal(t, "epi-1", c.Questions[0].ID)
	assert.Equal(t, 10.0, c.Questions[0].Options[0].Value)
}

func TestLoadFile_YAMLUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nquestionz: []\n"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
