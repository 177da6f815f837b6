package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-activity/internal/utils"
)

func TestBuildRendersInfluxQL(t *testing.T) {
	q, err := Build([]string{"STILL", "WALKING"}, []string{"Accelerometer-X", "Accelerometer-Y", "Traininglabel"}, "devicemotion", "Traininglabel")
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "Accelerometer-X", "Accelerometer-Y", "Traininglabel" FROM devicemotion WHERE Traininglabel = 'STILL' OR Traininglabel = 'WALKING'`,
		q.String(),
	)
}

func TestBuildSelectsEverythingWithoutFields(t *testing.T) {
	q, err := Build([]string{"STILL"}, nil, "devicemotion", "Traininglabel")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM devicemotion WHERE Traininglabel = 'STILL'`, q.String())

	star, err := Build([]string{"STILL"}, []string{"*"}, "devicemotion", "Traininglabel")
	require.NoError(t, err)
	assert.Equal(t, q.String(), star.String())
}

func TestBuildRejectsEmptyLabels(t *testing.T) {
	_, err := Build(nil, []string{"x"}, "devicemotion", "Traininglabel")
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	_, err = Build([]string{}, []string{"x"}, "devicemotion", "Traininglabel")
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestBuildCopiesInputs(t *testing.T) {
	labels := []string{"STILL"}
	q, err := Build(labels, []string{"x"}, "devicemotion", "Traininglabel")
	require.NoError(t, err)
	labels[0] = "RUNNING"
	assert.Equal(t, []string{"STILL"}, q.Labels)
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	assert.Equal(t, `"time"`, QuoteIdent("time"))
	assert.Equal(t, `"a\"b"`, QuoteIdent(`a"b`))
}

func TestDiscoveryStatements(t *testing.T) {
	assert.Equal(t, "SHOW MEASUREMENTS", ShowMeasurements())
	assert.Equal(t, `SHOW TAG VALUES FROM "devicemotion" WITH KEY = "Traininglabel"`, ShowTagValues("devicemotion", "Traininglabel"))
	assert.Equal(t, `SHOW FIELD KEYS FROM "devicemotion"`, ShowFieldKeys("devicemotion"))
}
