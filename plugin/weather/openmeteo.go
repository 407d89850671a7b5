// Package weather implements interactive weather lookup and daily forecast
// subscriptions backed by the Open-Meteo APIs.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Base URLs for the Open-Meteo APIs (overridable in tests).
var (
	GeocodingBaseURL = "https://geocoding-api.open-meteo.com"
	ForecastBaseURL  = "https://api.open-meteo.com"
)

// Place is a geocoded location. Timezone is load-bearing: a subscription
// fires in the place's own zone, not the subscriber's.
type Place struct {
	Query     string  `json:"query"`
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// Forecast is the subset of Open-Meteo fields the bot renders.
type Forecast struct {
	Temperature  float64
	ApparentTemp float64
	Humidity     float64
	WindSpeed    float64
	WeatherCode  int
	TempMax      float64
	TempMin      float64
	RainChance   float64
}

// Geocoder resolves a place query to candidate locations.
type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]Place, error)
}

// Forecaster fetches the forecast for a place.
type Forecaster interface {
	Forecast(ctx context.Context, place Place) (*Forecast, error)
}

// weatherCodeDesc maps WMO weather codes to Chinese descriptions.
var weatherCodeDesc = map[int]string{
	0: "晴", 1: "大部晴朗", 2: "多云", 3: "阴",
	45: "雾", 48: "冻雾",
	51: "毛毛雨", 53: "小雨", 55: "细雨",
	61: "小雨", 63: "中雨", 65: "大雨",
	71: "小雪", 73: "中雪", 75: "大雪",
	77: "米雪", 80: "阵雨", 81: "强阵雨", 82: "暴雨",
	85: "阵雪", 86: "强阵雪",
	95: "雷阵雨", 96: "雷阵雨伴小冰雹", 99: "雷阵雨伴大冰雹",
}

// DescribeCode renders a WMO weather code in Chinese.
func DescribeCode(code int) string {
	if desc, ok := weatherCodeDesc[code]; ok {
		return desc
	}
	return "未知天气"
}

// Client calls the Open-Meteo geocoding and forecast APIs.
type Client struct {
	http *http.Client
}

// NewClient creates an Open-Meteo client.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 10 * time.Second}}
}

// Geocode resolves query to up to five candidate places.
func (c *Client) Geocode(ctx context.Context, query string) ([]Place, error) {
	apiURL := GeocodingBaseURL + "/v1/search?name=" + url.QueryEscape(query) +
		"&count=5&language=zh&format=json"

	var result struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Timezone  string  `json:"timezone"`
			Admin1    string  `json:"admin1"`
			Country   string  `json:"country"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, apiURL, &result); err != nil {
		return nil, errors.Wrapf(err, "geocode %q", query)
	}

	places := make([]Place, 0, len(result.Results))
	for _, r := range result.Results {
		label := r.Name
		var region []string
		if r.Admin1 != "" && r.Admin1 != r.Name {
			region = append(region, r.Admin1)
		}
		if r.Country != "" {
			region = append(region, r.Country)
		}
		if len(region) > 0 {
			label = fmt.Sprintf("%s（%s）", r.Name, strings.Join(region, "，"))
		}
		places = append(places, Place{
			Query:     query,
			Label:     label,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Timezone:  r.Timezone,
		})
	}
	return places, nil
}

// Forecast fetches current conditions plus today's daily summary for place.
func (c *Client) Forecast(ctx context.Context, place Place) (*Forecast, error) {
	apiURL := fmt.Sprintf(
		"%s/v1/forecast?latitude=%.4f&longitude=%.4f"+
			"&current=temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m,apparent_temperature"+
			"&daily=temperature_2m_max,temperature_2m_min,precipitation_probability_max"+
			"&forecast_days=1&timezone=%s",
		ForecastBaseURL, place.Latitude, place.Longitude, url.QueryEscape(place.Timezone))

	var result struct {
		Current struct {
			Temperature  float64 `json:"temperature_2m"`
			Humidity     float64 `json:"relative_humidity_2m"`
			WeatherCode  int     `json:"weather_code"`
			WindSpeed    float64 `json:"wind_speed_10m"`
			ApparentTemp float64 `json:"apparent_temperature"`
		} `json:"current"`
		Daily struct {
			TempMax    []float64 `json:"temperature_2m_max"`
			TempMin    []float64 `json:"temperature_2m_min"`
			RainChance []float64 `json:"precipitation_probability_max"`
		} `json:"daily"`
	}
	if err := c.getJSON(ctx, apiURL, &result); err != nil {
		return nil, errors.Wrapf(err, "forecast for %s", place.Label)
	}

	f := &Forecast{
		Temperature:  result.Current.Temperature,
		ApparentTemp: result.Current.ApparentTemp,
		Humidity:     result.Current.Humidity,
		WindSpeed:    result.Current.WindSpeed,
		WeatherCode:  result.Current.WeatherCode,
	}
	if len(result.Daily.TempMax) > 0 {
		f.TempMax = result.Daily.TempMax[0]
	}
	if len(result.Daily.TempMin) > 0 {
		f.TempMin = result.Daily.TempMin[0]
	}
	if len(result.Daily.RainChance) > 0 {
		f.RainChance = result.Daily.RainChance[0]
	}
	return f, nil
}

func (c *Client) getJSON(ctx context.Context, apiURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FormatReport renders a forecast as a chat message.
func FormatReport(place Place, f *Forecast) string {
	return fmt.Sprintf(
		"%s 当前天气：%s\n气温 %.1f℃（体感 %.1f℃）\n湿度 %.0f%%，风速 %.1f km/h\n今日 %.0f℃ ~ %.0f℃，降水概率 %.0f%%",
		place.Label, DescribeCode(f.WeatherCode),
		f.Temperature, f.ApparentTemp,
		f.Humidity, f.WindSpeed,
		f.TempMin, f.TempMax, f.RainChance)
}
