package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/charles-d-burton/iot-printer/queue"
)

//NewHTTPClient retrying client shared by the network actions
func NewHTTPClient(timeout time.Duration, retries int) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return client
}

//Report current conditions and the daily outlook
type Report struct {
	Timezone string
	Current  Conditions
	Days     []Day
}

type Conditions struct {
	Time        string
	Temperature float64
	Code        int
}

type Day struct {
	Date time.Time
	Low  float64
	High float64
	Code int
}

type openMeteo struct {
	Timezone       string `json:"timezone"`
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WeatherCode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weathercode"`
		Max         []float64 `json:"temperature_2m_max"`
		Min         []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

//Weather client for the open-meteo forecast API
type Weather struct {
	URL       string
	Latitude  float64
	Longitude float64
	Client    *retryablehttp.Client
	Queue     Enqueuer
	Log       *logrus.Entry
}

//Fetch current conditions plus three days of forecast
func (w *Weather) Fetch(ctx context.Context) (*Report, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(w.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(w.Longitude, 'f', 4, 64))
	q.Set("current_weather", "true")
	q.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")
	q.Set("forecast_days", "3")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, w.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch weather: unexpected status %s", resp.Status)
	}

	var raw openMeteo
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}

	report := &Report{
		Timezone: raw.Timezone,
		Current: Conditions{
			Time:        raw.CurrentWeather.Time,
			Temperature: raw.CurrentWeather.Temperature,
			Code:        raw.CurrentWeather.WeatherCode,
		},
	}
	for i, d := range raw.Daily.Time {
		if i >= len(raw.Daily.Max) || i >= len(raw.Daily.Min) || i >= len(raw.Daily.WeatherCode) {
			break
		}
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("decode weather date %q: %w", d, err)
		}
		report.Days = append(report.Days, Day{
			Date: date,
			Low:  raw.Daily.Min[i],
			High: raw.Daily.Max[i],
			Code: raw.Daily.WeatherCode[i],
		})
	}
	return report, nil
}

//Forecast the daily printout: current conditions then today and tomorrow
func (w *Weather) Forecast(ctx context.Context) error {
	report, err := w.Fetch(ctx)
	if err != nil {
		return err
	}
	w.Log.WithField("days", len(report.Days)).Info("Printing forecast")

	jobs := []queue.Job{
		queue.PrintText(queue.Text{Text: center("Weather for "+report.Timezone, LineWidth), Inverse: true}, 0),
		queue.PrintText(queue.Text{Text: center("Current conditions:", LineWidth), Bold: true}, 0),
		queue.PrintText(queue.Text{Text: center(report.Current.Time, LineWidth)}, 0),
		queue.PrintText(queue.Text{Text: fmt.Sprintf("%.0f%s %s", report.Current.Temperature, degree, Describe(report.Current.Code))}, 0),
		queue.PrintText(queue.Text{Text: center("Forecast:", LineWidth), Bold: true}, 0),
	}
	for i, d := range report.Days {
		if i == 2 {
			break
		}
		jobs = append(jobs, queue.PrintText(queue.Text{Text: fmt.Sprintf("%s: low %.0f%s high %.0f%s %s",
			d.Date.Format("Mon"), d.Low, degree, d.High, degree, Describe(d.Code))}, 0))
	}
	jobs = append(jobs, queue.FeedLines(bannerFeed))
	return enqueue(w.Queue, jobs...)
}

//Current temperature and description, used when no probe is attached
func (w *Weather) Current(ctx context.Context) (float64, string, error) {
	report, err := w.Fetch(ctx)
	if err != nil {
		return 0, "", err
	}
	return report.Current.Temperature, Describe(report.Current.Code), nil
}

//Describe WMO weather interpretation codes
func Describe(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing rain"
	case 71, 73, 75, 77:
		return "Snow"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with hail"
	}
	return "Unknown"
}
