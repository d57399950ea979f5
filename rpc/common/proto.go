package common

import (
	"github.com/ValentinKolb/dRate/lib/register"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/vclock"
	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec of every HTTP payload
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ContentTypeJSON is the only media type of the rating api
const ContentTypeJSON = "application/json"

// --------------------------------------------------------------------------
// Message Structures
// --------------------------------------------------------------------------

// PutRequest is the body of PUT /rating/{entity}
type PutRequest struct {
	Rating *float64          `json:"rating"`
	Clock  map[string]uint64 `json:"clock"`
}

// PutResponse is the answer to a PUT, Rating is the mean after the write
type PutResponse struct {
	Rating float64 `json:"rating"`
}

// GetResponse is the answer to a GET. An absent entity is rendered with a zero mean and
// empty lists.
type GetResponse struct {
	Rating  float64             `json:"rating"`
	Choices []float64           `json:"choices"`
	Clocks  []map[string]uint64 `json:"clocks"`
}

// DeleteResponse is the answer to a successful DELETE, Rating is always null
type DeleteResponse struct {
	Rating *float64 `json:"rating"`
}

// ErrorResponse is the body of every non 2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetResponse renders an aggregate
func NewGetResponse(agg register.Aggregate) GetResponse {
	resp := GetResponse{
		Rating:  agg.Mean(),
		Choices: make([]float64, len(agg.Choices)),
		Clocks:  make([]map[string]uint64, len(agg.Clocks)),
	}
	copy(resp.Choices, agg.Choices)
	for i, c := range agg.Clocks {
		resp.Clocks[i] = c.Map()
	}
	return resp
}

// Aggregate converts the response back into a register
func (r GetResponse) Aggregate() register.Aggregate {
	agg := register.Aggregate{
		Choices: append([]float64(nil), r.Choices...),
		Clocks:  make([]vclock.VectorClock, len(r.Clocks)),
	}
	for i, c := range r.Clocks {
		agg.Clocks[i] = vclock.FromMap(c)
	}
	return agg
}

// NewErrorResponse renders an error, the code is taken from a store.Error
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Error: err.Error(),
		Code:  store.CodeOf(err).String(),
	}
}

// ParsePutRequest decodes a PUT body. A missing or non numeric rating and a clock that is
// not an object of non negative integers are bad requests. A missing clock is empty.
func ParsePutRequest(body []byte) (float64, vclock.VectorClock, error) {
	var req PutRequest
	if err := JSON.Unmarshal(body, &req); err != nil {
		return 0, nil, store.Errorf(store.RetCBadRequest, "invalid body: %v", err)
	}
	if req.Rating == nil {
		return 0, nil, store.NewError(store.RetCBadRequest, "rating is missing")
	}
	return *req.Rating, vclock.FromMap(req.Clock), nil
}
