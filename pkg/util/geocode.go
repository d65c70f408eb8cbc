package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Kakao Local API - Address Search
// https://developers.kakao.com/docs/latest/ko/local/dev-guide#address-coord
const kakaoAddressSearchURL = "https://dapi.kakao.com/v2/local/search/address.json"

// KakaoGeocodeResponse represents the response from Kakao address search API
type KakaoGeocodeResponse struct {
	Documents []struct {
		Address struct {
			AddressName string `json:"address_name"`
			X           string `json:"x"` // longitude
			Y           string `json:"y"` // latitude
		} `json:"address"`
		RoadAddress struct {
			AddressName string `json:"address_name"`
			X           string `json:"x"` // longitude
			Y           string `json:"y"` // latitude
		} `json:"road_address"`
	} `json:"documents"`
	Meta struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
}

// KakaoGeocoder resolves store addresses with the Kakao address search API.
type KakaoGeocoder struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewKakaoGeocoder(apiKey string) *KakaoGeocoder {
	return &KakaoGeocoder{
		apiKey:   apiKey,
		endpoint: kakaoAddressSearchURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Geocode converts an address string to latitude and longitude.
// An empty address yields (nil, nil, nil).
func (g *KakaoGeocoder) Geocode(ctx context.Context, address string) (*float64, *float64, error) {
	if address == "" {
		return nil, nil, nil // No error, just no coordinates
	}
	if g.apiKey == "" {
		return nil, nil, fmt.Errorf("kakao API key not configured")
	}

	params := url.Values{}
	params.Add("query", address)
	requestURL := fmt.Sprintf("%s?%s", g.endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", fmt.Sprintf("KakaoAK %s", g.apiKey))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call Kakao API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("kakao API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result KakaoGeocodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Meta.TotalCount == 0 || len(result.Documents) == 0 {
		return nil, nil, fmt.Errorf("no results found for address: %s", address)
	}

	// road_address 우선, 없으면 지번 주소
	doc := result.Documents[0]
	latStr, lngStr := doc.RoadAddress.Y, doc.RoadAddress.X
	if latStr == "" || lngStr == "" {
		latStr, lngStr = doc.Address.Y, doc.Address.X
	}
	if latStr == "" || lngStr == "" {
		return nil, nil, fmt.Errorf("no coordinates in response")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse longitude: %w", err)
	}
	return &lat, &lng, nil
}
