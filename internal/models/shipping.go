package models

import (
	"net/url"
	"strconv"
)

// Fixed GHTK quote options.
const (
	ShippingTransportRoad  = "road"
	ShippingDeliverOptNone = "none"
)

// FeeItem is one line to quote shipping for.
type FeeItem struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// FeeRequest holds the parameters of one GHTK fee lookup.
type FeeRequest struct {
	PickProvince  string
	PickDistrict  string
	Province      string
	District      string
	Address       string
	Weight        int
	Value         int64
	Transport     string
	DeliverOption string
	Tags          []string
}

// Values encodes the request as the query string the fee endpoint expects.
func (r FeeRequest) Values() url.Values {
	v := url.Values{}
	v.Set("pick_province", r.PickProvince)
	v.Set("pick_district", r.PickDistrict)
	v.Set("province", r.Province)
	v.Set("district", r.District)
	v.Set("address", r.Address)
	v.Set("weight", strconv.Itoa(r.Weight))
	v.Set("value", strconv.FormatInt(r.Value, 10))
	if r.Transport != "" {
		v.Set("transport", r.Transport)
	}
	if r.DeliverOption != "" {
		v.Set("deliver_option", r.DeliverOption)
	}
	for _, t := range r.Tags {
		v.Add("tags[]", t)
	}
	return v
}

// FeeResponse is the carrier's fee answer.
type FeeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Fee     struct {
		Name         string `json:"name,omitempty"`
		Fee          int64  `json:"fee"`
		InsuranceFee int64  `json:"insurance_fee,omitempty"`
		Delivery     bool   `json:"delivery,omitempty"`
	} `json:"fee"`
}

// FeeQuote is the result of a batch lookup. Failed items carry a fee of 0.
type FeeQuote struct {
	Fees   map[string]int64 `json:"fees"`
	Failed []string         `json:"failed"`
}

// Fee returns the fee for a product, 0 when unknown.
func (q FeeQuote) Fee(productID string) int64 {
	return q.Fees[productID]
}

// Total sums the fees of the selected products.
func (q FeeQuote) Total(selected []string) int64 {
	var total int64
	for _, id := range selected {
		total += q.Fees[id]
	}
	return total
}

// ShipmentOrder is the carrier shipment request sent after the shop confirms.
type ShipmentOrder struct {
	Products []ShipmentProduct `json:"products"`
	Order    ShipmentDetails   `json:"order"`
}

type ShipmentProduct struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Quantity int     `json:"quantity"`
	Price    int64   `json:"price"`
}

type ShipmentDetails struct {
	ID           string `json:"id"`
	PickName     string `json:"pick_name"`
	PickAddress  string `json:"pick_address"`
	PickProvince string `json:"pick_province"`
	PickDistrict string `json:"pick_district"`
	PickWard     string `json:"pick_ward,omitempty"`
	PickTel      string `json:"pick_tel"`
	Tel          string `json:"tel"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Province     string `json:"province"`
	District     string `json:"district"`
	Ward         string `json:"ward,omitempty"`
	Hamlet       string `json:"hamlet"`
	IsFreeship   int    `json:"is_freeship"`
	PickMoney    int64  `json:"pick_money"`
	Value        int64  `json:"value"`
	Transport    string `json:"transport"`
}

// ShipmentResponse is the carrier's answer to a shipment request.
type ShipmentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Order   *struct {
		Label        string `json:"label"`
		TrackingID   int64  `json:"tracking_id"`
		Fee          int64  `json:"fee"`
		InsuranceFee int64  `json:"insurance_fee"`
	} `json:"order,omitempty"`
}
