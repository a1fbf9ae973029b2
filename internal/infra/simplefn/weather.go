package simplefn

import (
	"context"
	"math"
	"net/url"
	"strconv"

	"home-voice/config"
)

const weatherUnavailable = "Weather data not available at the moment, please try later."

type currentWeather struct {
	Temperature *float64 `json:"temperature"`
	WindSpeed   *float64 `json:"windspeed"`
}

type forecastResponse struct {
	CurrentWeather *currentWeather `json:"current_weather"`
}

type geocodingResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

func (r *Registry) registerInformation() {
	r.register(Function{Name: "home_weather", Handler: r.homeWeather})
	r.register(Function{Name: "get_weather", Handler: r.getWeather})
	r.register(Function{Name: "get_wikipedia_summary", Handler: r.wikipediaSummary})
	r.register(Function{Name: "get_news_summary", Handler: r.newsSummary})
}

func (r *Registry) homeWeather(ctx context.Context, _ map[string]any) (any, error) {
	if r.location == nil {
		return "Home location not configured.", nil
	}
	loc, ok := r.location.HomeLocation()
	if !ok {
		return "Home coordinates not available.", nil
	}

	current, err := r.currentWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		r.logger.Warn("weather request failed", "place", "home", "error", err)
		return weatherUnavailable, nil
	}
	if current == nil {
		return "Weather data not available.", nil
	}
	return formatWeather("home", current), nil
}

func (r *Registry) getWeather(ctx context.Context, args map[string]any) (any, error) {
	place, err := stringArg(args, "place")
	if err != nil {
		return nil, err
	}
	if place == "" {
		return "Please specify a location.", nil
	}

	var geo geocodingResponse
	params := url.Values{"name": {place}, "count": {"1"}, "format": {"json"}}
	if err := r.getJSON(ctx, r.site(config.SiteOpenMeteoGeocoder), params, &geo); err != nil {
		r.logger.Warn("geocoding request failed", "place", place, "error", err)
		return weatherUnavailable, nil
	}
	if len(geo.Results) == 0 {
		return "Could not find location: " + place, nil
	}

	current, err := r.currentWeather(ctx, geo.Results[0].Latitude, geo.Results[0].Longitude)
	if err != nil {
		r.logger.Warn("weather request failed", "place", place, "error", err)
		return weatherUnavailable, nil
	}
	if current == nil {
		return "Weather data not available for " + place + ".", nil
	}
	return formatWeather(place, current), nil
}

func (r *Registry) currentWeather(ctx context.Context, lat, lon float64) (*currentWeather, error) {
	params := url.Values{
		"latitude":        {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":       {strconv.FormatFloat(lon, 'f', -1, 64)},
		"current_weather": {"true"},
	}

	var resp forecastResponse
	if err := r.getJSON(ctx, r.site(config.SiteOpenMeteoWeather), params, &resp); err != nil {
		return nil, err
	}
	if resp.CurrentWeather == nil || resp.CurrentWeather.Temperature == nil {
		return nil, nil
	}
	return resp.CurrentWeather, nil
}

func formatWeather(place string, w *currentWeather) string {
	msg := "The weather in " + place + " is " + round2(*w.Temperature) + " degrees"
	if w.WindSpeed != nil {
		msg += " and wind speed " + round2(*w.WindSpeed) + " kmh"
	}
	return msg + "."
}

func round2(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
