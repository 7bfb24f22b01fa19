package normalizer

import "encoding/xml"

// publicationDocument is the "success" shape ENTSO-E returns: one or more
// TimeSeries, each carrying one or more Period segments of points.
type publicationDocument struct {
	XMLName    xml.Name     `xml:"Publication_MarketDocument"`
	TimeSeries []timeSeries `xml:"TimeSeries"`
}

type timeSeries struct {
	Periods []period `xml:"Period"`
}

type period struct {
	TimeInterval timeInterval `xml:"timeInterval"`
	Resolution   string       `xml:"resolution"`
	Points       []point      `xml:"Point"`
}

type timeInterval struct {
	Start string `xml:"start"`
	End   string `xml:"end"`
}

type point struct {
	Position    int    `xml:"position"`
	PriceAmount string `xml:"price.amount"`
}

// acknowledgementDocument is the shape ENTSO-E returns when it has nothing
// to report, or when the request itself was rejected.
type acknowledgementDocument struct {
	XMLName xml.Name `xml:"Acknowledgement_MarketDocument"`
	Reasons []reason `xml:"Reason"`
}

type reason struct {
	Code string `xml:"code"`
	Text string `xml:"text"`
}

// reasonCodeNoData is the ENTSO-E acknowledgement code meaning "no matching
// data found" — treated as success with an empty result, not an error.
const reasonCodeNoData = "999"
