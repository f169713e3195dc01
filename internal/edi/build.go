package edi

import (
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/mtedit"
	"github.com/John-Robertt/zmt/internal/mtft"
)

// Input 是组装一份 EDI 所需的全部来源。
type Input struct {
	Path      string
	Station   string
	RRStation string

	// Survey / RRSurvey 来自 SurveyLookup；RRSurvey 为 nil 表示没有 remote 测站信息。
	Survey   map[string]string
	RRSurvey map[string]string

	MTFT   *mtft.Config
	MTEdit *mtedit.Config

	Z      domain.ComplexTensor
	Tipper domain.ComplexTensor

	Now time.Time
}

// 默认通道（没有 mtft24.cfg 时使用）。
var defaultChannels = []domain.Channel{
	{Component: "hx", ID: "1", Length: "100"},
	{Component: "hy", ID: "2", Length: "100"},
	{Component: "hz", ID: "3", Length: "100"},
	{Component: "ex", ID: "4", Length: "100"},
	{Component: "ey", ID: "5", Length: "100"},
}

// Build 把测站信息、处理配置与张量组装成 Exchange。
func Build(in Input) domain.Exchange {
	survey := copyMap(in.Survey)
	take := func(key, def string) string {
		if v, ok := survey[key]; ok {
			delete(survey, key)
			return v
		}
		return def
	}

	dataID := in.Station
	if v, ok := survey["station"]; ok && v != "" {
		dataID = v
	}
	network := take("network", "")
	acqDate := take("date", "")
	loc := take("location", "")
	lat := take("lat", "0.0")
	lon := take("lon", "0.0")
	elev := take("elevation", "0")

	head := []domain.Field{
		{Key: "DATAID", Value: quote(dataID)},
		{Key: "ACQBY", Value: quote(network)},
		{Key: "FILEBY", Value: quote(network)},
		{Key: "ACQDATE", Value: acqDate},
		{Key: "FILEDATE", Value: in.Now.Format("2006-01-02")},
		{Key: "LOC", Value: quote(loc)},
		{Key: "LAT", Value: lat},
		{Key: "LONG", Value: lon},
		{Key: "ELEV", Value: elev},
	}

	info := []domain.Field{{Key: "MAXLINES", Value: "1000"}}
	info = append(info, domain.Field{Key: "Survey Parameters"})
	for _, k := range sortedKeys(survey) {
		info = append(info, domain.Field{Key: k, Value: survey[k]})
	}
	chans := defaultChannels
	if in.MTFT != nil {
		info = append(info, domain.Field{Key: "mtft24 parameters"})
		info = append(info, in.MTFT.Params...)
		if len(in.MTFT.Setups) > 0 {
			chans = in.MTFT.Setups[0].Channels
		}
	}
	units := "m"
	if in.MTEdit != nil {
		info = append(info, domain.Field{Key: "mtedit parameters"})
		info = append(info, in.MTEdit.Meta...)
		if v, ok := in.MTEdit.Get("Unit.Length"); ok && v != "" {
			units = v
		}
	}

	rr := copyMap(in.RRSurvey)
	refLat, refLon, refElev := lat, lon, elev
	rhxID, rhyID, rhxAzm, rhyAzm := "6", "7", "0", "90"
	if rr != nil {
		refLat = valueOr(rr, "lat", "0.0")
		refLon = valueOr(rr, "lon", "0.0")
		refElev = valueOr(rr, "elev", "0.0")
		rhxID = valueOr(rr, "hx", rhxID)
		rhyID = valueOr(rr, "hy", rhyID)
		rhxAzm = valueOr(rr, "b_xaxis_azimuth", rhxAzm)
		rhyAzm = valueOr(rr, "b_yaxis_azimuth", rhyAzm)
	}

	define := []domain.Field{
		{Key: "MAXCHAN", Value: "7"},
		{Key: "MAXRUN", Value: "999"},
		{Key: "MAXMEAS", Value: "99999"},
		{Key: "UNITS", Value: units},
		{Key: "REFTYPE", Value: "CART"},
		{Key: "REFLAT", Value: refLat},
		{Key: "REFLONG", Value: refLon},
		{Key: "REFELEV", Value: refElev},
	}

	// 按分量名取通道；mtft24.cfg 中缺失的分量用默认值。
	ch := func(i int) domain.Channel {
		def := defaultChannels[i]
		for _, c := range chans {
			if strings.EqualFold(c.Component, def.Component) {
				return c
			}
		}
		return def
	}
	meas := []domain.Measurement{
		{Kind: "HMEAS", ID: ch(0).ID, ChType: "HX", Azm: atof(valueOr(in.Survey, "b_xaxis_azimuth", "0"))},
		{Kind: "HMEAS", ID: ch(1).ID, ChType: "HY", Azm: atof(valueOr(in.Survey, "b_yaxis_azimuth", "90"))},
		{Kind: "HMEAS", ID: ch(2).ID, ChType: "HZ"},
		{Kind: "EMEAS", ID: ch(3).ID, ChType: "EX", X2: atof(ch(3).Length)},
		{Kind: "EMEAS", ID: ch(4).ID, ChType: "EY", Y2: atof(ch(4).Length)},
		{Kind: "HMEAS", ID: rhxID, ChType: "RHX", Azm: atof(rhxAzm)},
		{Kind: "HMEAS", ID: rhyID, ChType: "RHY", Azm: atof(rhyAzm)},
	}

	sect := []domain.Field{
		{Key: "SECTID", Value: quote(in.Station)},
		{Key: "NFREQ", Value: strconv.Itoa(in.Z.Len())},
	}
	for i := 0; i < 5; i++ {
		sect = append(sect, domain.Field{Key: strings.ToUpper(ch(i).Component), Value: ch(i).ID})
	}
	sect = append(sect,
		domain.Field{Key: "RX", Value: rhxID},
		domain.Field{Key: "RY", Value: rhyID},
	)

	return domain.Exchange{
		Path:       in.Path,
		Head:       head,
		Info:       info,
		DefineMeas: define,
		Meas:       meas,
		MTSect:     sect,
		Z:          in.Z,
		Tipper:     in.Tipper,
	}
}

func quote(s string) string { return `"` + s + `"` }

func valueOr(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
