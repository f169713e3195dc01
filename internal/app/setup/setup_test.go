package setup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/zmt/internal/domain"
)

func recWith(comps ...string) domain.TimeSeriesRecord {
	return domain.TimeSeriesRecord{Components: comps}
}

func TestGroup_DistinctCountsFirstSeen(t *testing.T) {
	five := []string{"Hx", "Hy", "Hz", "Ex", "Ey"}
	three := []string{"Hx", "Ex", "Ey"}
	records := []domain.TimeSeriesRecord{
		recWith(five...), recWith(five...), recWith(three...), recWith(five...), recWith(three...),
	}

	setups := Group(records, DefaultOptions())
	require.Len(t, setups, 2)
	assert.Equal(t, 1, setups[0].ID)
	assert.Equal(t, five, setups[0].Components())
	assert.Equal(t, 2, setups[1].ID)
	assert.Equal(t, three, setups[1].Components())

	ex, ok := setups[1].Channel(domain.CompEx)
	require.True(t, ok)
	assert.Equal(t, "4", ex.ID)

	assert.Equal(t, 1, SetupFor(setups, records[0]))
	assert.Equal(t, 2, SetupFor(setups, records[2]))
}

func TestGroup_UnknownComponentFallsBackToPosition(t *testing.T) {
	setups := Group([]domain.TimeSeriesRecord{recWith("Hx", "Tx")}, DefaultOptions())
	ch, ok := setups[0].Channel("Tx")
	require.True(t, ok)
	assert.Equal(t, "2", ch.ID)
}

func TestWithRemote_ExactlyOncePerSetup(t *testing.T) {
	records := []domain.TimeSeriesRecord{
		recWith("Hx", "Hy", "Hz", "Ex", "Ey"),
		recWith("Hx", "Hy", "Hz", "Ex", "Ey"),
		recWith("Ex", "Ey"),
	}
	base := Group(records, DefaultOptions())
	once := WithRemote(base, "/data/rr")
	twice := WithRemote(once, "/data/rr")

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("重复追加 remote 通道 (-once +twice):\n%s", diff)
	}
	assert.Equal(t, []string{"Hx", "Hy", "Hz", "Ex", "Ey", "Hxr", "Hyr"}, once[0].Components())
	assert.Equal(t, 7, once[0].GainColumns)
	assert.Equal(t, 4, once[1].GainColumns)
	assert.Equal(t, "/data/rr/", once[0].RemotePath)

	// 入参未被修改
	assert.Len(t, base[0].Channels, 5)

	// 追加 remote 后记录仍能找到自己的 setup
	assert.Equal(t, 2, SetupFor(once, records[2]))
}

type mapSurvey map[string]map[string]string

func (m mapSurvey) Lookup(station string) (map[string]string, bool) {
	v, ok := m[station]
	return v, ok
}

func TestApplySurvey_OverridesAndDiagnostics(t *testing.T) {
	base := WithRemote(Group([]domain.TimeSeriesRecord{recWith("Hx", "Hy", "Hz", "Ex", "Ey")}, DefaultOptions()), "/rr")
	survey := mapSurvey{
		"MT01": {"hx": "2500", "hy": "2501", "hz": "25*", "e_xaxis_length": "90"},
		"RR01": {"hx": "2600"},
	}

	got, diags := ApplySurvey(base, survey, "MT01", "RR01")

	want := []domain.Channel{
		{Component: "Hx", ID: "2500", Gain: "1", Length: "100"},
		{Component: "Hy", ID: "2501", Gain: "1", Length: "100"},
		{Component: "Hz", ID: "3", Gain: "1", Length: "100"},
		{Component: "Ex", ID: "4", Gain: "1", Length: "90"},
		{Component: "Ey", ID: "5", Gain: "1", Length: "100"},
		{Component: "Hxr", ID: "2600", Gain: "1", Length: "100"},
		{Component: "Hyr", ID: "2274", Gain: "1", Length: "100"},
	}
	if diff := cmp.Diff(want, got[0].Channels); diff != "" {
		t.Fatalf("通道不一致 (-want +got):\n%s", diff)
	}

	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, domain.ErrCodeMissingField, d.Code)
	}
	assert.Equal(t, "MT01", diags[0].Subject)
	assert.Equal(t, "RR01", diags[1].Subject)

	// 纯函数：入参不变
	hx, _ := base[0].Channel(domain.CompHx)
	assert.Equal(t, "2314", hx.ID)
}

func TestApplySurvey_MissingStationKeepsDefaults(t *testing.T) {
	base := Group([]domain.TimeSeriesRecord{recWith("Hx")}, DefaultOptions())
	got, diags := ApplySurvey(base, mapSurvey{}, "NOPE", "")
	assert.Equal(t, base, got)
	require.Len(t, diags, 1)
	assert.Equal(t, "NOPE", diags[0].Subject)

	got, diags = ApplySurvey(base, nil, "NOPE", "")
	assert.Equal(t, base, got)
	assert.Empty(t, diags)
}
