package incident

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Hay una GOTERA en el baño del 3A")
	assert.True(t, tokens["gotera"])
	assert.True(t, tokens["baño"])
	assert.False(t, tokens["una"], "stop word kept")
	assert.False(t, tokens["en"], "short token kept")
	assert.False(t, tokens["3a"], "two-char token kept")

	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("de la el en"))
}

func TestOverlapRatio(t *testing.T) {
	a := Tokenize("gotera techo baño agua")
	b := Tokenize("gotera baño agua")
	// the smaller set is fully contained
	assert.InDelta(t, 1.0, OverlapRatio(a, b), 0.001)

	c := Tokenize("ascensor averiado tercero")
	assert.InDelta(t, 0.0, OverlapRatio(a, c), 0.001)

	assert.Equal(t, 0.0, OverlapRatio(nil, a))
	assert.Equal(t, 0.0, OverlapRatio(a, map[string]bool{}))
}

func TestSameIncident(t *testing.T) {
	gotera := "gotera"

	// identical explicit type matches regardless of wording
	assert.True(t, SameIncident("Gotera en el baño del 3A", &gotera, "Sigue cayendo agua del techo", "gotera"))

	// no type on either side, heavy overlap
	assert.True(t, SameIncident("gotera techo baño", nil, "gotera en techo del baño", ""))

	// unrelated report from the same phone opens a new incident
	assert.False(t, SameIncident("Gotera en el baño", &gotera, "El ascensor no funciona", "ascensor"))
	assert.False(t, SameIncident("gotera baño techo", nil, "ruido fiesta vecinos madrugada", ""))
}

// Three reports from the same neighbor: a leak described two different ways
// must land on one incident, while a billing complaint stays separate.
func TestSameIncident_RewordedLeakAndBilling(t *testing.T) {
	leak := "Gotera en el baño del 3A"
	reworded := "Fuga de agua en baño"

	// the rewording shares too few tokens to merge on wording alone
	ratio := OverlapRatio(Tokenize(leak), Tokenize(reworded))
	assert.Less(t, ratio, similarityThreshold)

	// but both classify to the same leak type, so they still merge
	first := heuristicClassify(leak)
	second := heuristicClassify(reworded)
	require.Equal(t, "gotera", first.Type)
	require.Equal(t, "gotera", second.Type)
	assert.True(t, SameIncident(leak, &first.Type, reworded, second.Type))

	// the billing complaint matches neither by type nor by wording
	billing := heuristicClassify("Factura incorrecta este mes")
	assert.NotEqual(t, first.Type, billing.Type)
	assert.False(t, SameIncident(leak, &first.Type, "Factura incorrecta este mes", billing.Type))
}

func TestHeuristicClassify(t *testing.T) {
	cls := heuristicClassify("Hola, hay una gotera en el baño del 3A")
	require.True(t, cls.IsIncident)
	assert.Equal(t, "gotera", cls.Type)
	assert.GreaterOrEqual(t, cls.Confidence, minConfidence)

	cls = heuristicClassify("El ascensor lleva dos días parado")
	require.True(t, cls.IsIncident)
	assert.Equal(t, "ascensor", cls.Type)

	// billing questions are classified but not incidents
	cls = heuristicClassify("¿Cuándo pasa el recibo de la comunidad?")
	assert.False(t, cls.IsIncident)
	assert.Equal(t, "pago", cls.Type)

	cls = heuristicClassify("Buenos días, gracias por todo")
	assert.False(t, cls.IsIncident)
	assert.Empty(t, cls.Type)
}

func TestOpenAIClassifierFallsBackWithoutKey(t *testing.T) {
	c := NewOpenAIClassifier("", "gpt-4o-mini")
	cls, err := c.Classify(context.Background(), "Hay una fuga de agua en el garaje")
	require.NoError(t, err)
	assert.True(t, cls.IsIncident)
	assert.Equal(t, "gotera", cls.Type)
}

func TestExtractJSON(t *testing.T) {
	raw := "```json\n{\"is_incident\": true}\n```"
	assert.Equal(t, `{"is_incident": true}`, extractJSON(raw))
	assert.Equal(t, "no braces", extractJSON("no braces"))
}
