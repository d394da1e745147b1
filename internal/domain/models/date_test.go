package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDateOfDropsTimeComponent(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	d := DateOf(time.Date(2024, time.March, 15, 23, 30, 0, 0, loc))

	assert.Equal(t, "2024-03-15", d.String())
	assert.Equal(t, MustDate("2024-03-15"), d)
}

func TestDateDaysUntil(t *testing.T) {
	assert.Equal(t, 74, MustDate("2024-01-01").DaysUntil(MustDate("2024-03-15")))
	assert.Equal(t, 364, MustDate("2024-03-16").DaysUntil(MustDate("2025-03-15")))
	assert.Equal(t, 0, MustDate("2024-03-15").DaysUntil(MustDate("2024-03-15")))
}

func TestDateBSONRoundTrip(t *testing.T) {
	type doc struct {
		Date  Date  `bson:"date"`
		Birth *Date `bson:"birth,omitempty"`
	}

	raw, err := bson.Marshal(doc{Date: MustDate("2023-12-25")})
	require.NoError(t, err)

	assert.Equal(t, "2023-12-25", bson.Raw(raw).Lookup("date").StringValue())
	_, err = bson.Raw(raw).LookupErr("birth")
	assert.Error(t, err, "nil birth date should be omitted")

	var decoded doc
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	assert.Equal(t, MustDate("2023-12-25"), decoded.Date)
	assert.Nil(t, decoded.Birth)
}

func TestDateJSON(t *testing.T) {
	birth := MustDate("1990-03-15")
	payload, err := json.Marshal(Member{Name: "Ana", BirthDate: &birth, RegistrationDate: MustDate("2020-01-05")})
	require.NoError(t, err)

	var decoded Member
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.NotNil(t, decoded.BirthDate)
	assert.Equal(t, birth, *decoded.BirthDate)
	assert.Equal(t, "2020-01-05", decoded.RegistrationDate.String())
}

func TestParseDateRejectsTimestamps(t *testing.T) {
	_, err := ParseDate("2024-03-15T10:00:00Z")
	assert.Error(t, err)
}
