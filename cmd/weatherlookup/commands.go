package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherlookup/internal/service"
	"github.com/kjstillabower/weatherlookup/internal/validation"
)

type QueryCmd struct {
	City string `arg:"" help:"City or free-text location."`
}

func (c *QueryCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	r, _, _ := a.renderer(ctx, g.Output)
	return finish(a.newService(r).Query(ctx, c.City))
}

type CoordsCmd struct {
	Lat string `arg:"" help:"Latitude in degrees."`
	Lon string `arg:"" help:"Longitude in degrees."`
}

func (c *CoordsCmd) Run(ctx context.Context, g *Globals) error {
	lat, lon, err := validation.ParseCoordinates(c.Lat, c.Lon)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	r, _, _ := a.renderer(ctx, g.Output)
	return finish(a.newService(r).QueryByCoordinates(ctx, lat, lon))
}

type LocateCmd struct{}

func (c *LocateCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	r, _, _ := a.renderer(ctx, g.Output)
	return finish(a.newService(r).QueryByLocator(ctx, a.locator()))
}

type SearchCmd struct {
	Text string `arg:"" help:"Partial location name."`
}

func (c *SearchCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	r, suggestions, _ := a.renderer(ctx, g.Output)
	matches, err := a.newService(r).Search(ctx, c.Text)
	if err != nil {
		a.logger.Debug("search failed", zap.Error(err))
	}
	suggestions.RenderSuggestions(matches)
	return nil
}

type SettingsCmd struct {
	Unit       string `help:"Temperature unit (celsius, fahrenheit, c or f)."`
	ToggleUnit bool   `name:"toggle-unit" help:"Switch between Celsius and Fahrenheit."`
	Theme      string `help:"Theme name; auto follows the weather."`
	ShowChart  string `name:"show-chart" help:"Show the hourly chart." enum:",on,off" default:""`
}

func (c *SettingsCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if c.Unit != "" {
		if _, err := a.settings.SetTemperatureUnit(ctx, c.Unit); err != nil {
			return err
		}
	}
	if c.ToggleUnit {
		if _, err := a.settings.ToggleUnit(ctx); err != nil {
			return err
		}
	}
	if c.Theme != "" {
		if err := a.settings.SetTheme(ctx, c.Theme); err != nil {
			return err
		}
	}
	if c.ShowChart != "" {
		if err := a.settings.SetShowChart(ctx, c.ShowChart == "on"); err != nil {
			return err
		}
	}
	s, err := a.settings.Load(ctx)
	if err != nil {
		return err
	}
	if g.Output == "json" {
		return json.NewEncoder(a.out).Encode(s)
	}
	chart := "off"
	if s.ShowChart {
		chart = "on"
	}
	_, err = fmt.Fprintf(a.out, "Unit %s | Theme %s | Chart %s\n", s.TemperatureUnit, s.Theme, chart)
	return err
}

type WatchCmd struct {
	City string `arg:"" optional:"" help:"City to watch; omitted resumes the cached query."`
	Lat  string `help:"Latitude instead of a city."`
	Lon  string `help:"Longitude instead of a city."`
}

func (c *WatchCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	r, _, _ := a.renderer(ctx, g.Output)
	svc := a.newService(r)

	switch {
	case c.Lat != "" || c.Lon != "":
		lat, lon, perr := validation.ParseCoordinates(c.Lat, c.Lon)
		if perr != nil {
			return perr
		}
		err = svc.QueryByCoordinates(ctx, lat, lon)
	default:
		err = svc.Start(ctx, c.City)
	}
	if err != nil {
		a.logger.Warn("initial query failed; will keep retrying", zap.Error(err))
	}
	if svc.LastQuery().IsZero() {
		return errors.New("nothing to watch: give a city or coordinates")
	}

	a.logger.Info("watching", zap.String("query", svc.LastQuery().String()),
		zap.Duration("interval", a.cfg.RefreshInterval))
	err = service.NewRefresher(svc, a.cfg.RefreshInterval, a.logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type InteractiveCmd struct {
	City string `help:"Deep-link city queried on start."`
}

func (c *InteractiveCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	return runSession(ctx, a, g.Output, c.City, os.Stdin)
}

const sessionHelp = `Type to search. Commands:
  :q <city>       query a city
  :c <lat> <lon>  query coordinates
  :l              query the current position
  :r              retry the last query
  :u              toggle the temperature unit
  :quit           exit`

// runSession reads commands line by line. Plain text is fed to the debounced
// suggester as if typed into a search box.
func runSession(ctx context.Context, a *app, format, city string, in io.Reader) error {
	r, suggestions, text := a.renderer(ctx, format)
	svc := a.newService(r)
	suggester := service.NewSuggester(svc, a.cfg.SearchDebounce, func(s service.Suggestions) {
		suggestions.RenderSuggestions(s.Matches)
	})
	defer suggester.Stop()

	_ = svc.Start(ctx, city)
	fmt.Fprintln(a.out, sessionHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}
		line = strings.TrimSpace(line)
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "":
		case ":quit", ":exit":
			return nil
		case ":q":
			suggester.Stop()
			_ = svc.Query(ctx, arg)
		case ":c":
			suggester.Stop()
			latStr, lonStr, _ := strings.Cut(arg, " ")
			lat, lon, err := validation.ParseCoordinates(latStr, strings.TrimSpace(lonStr))
			if err != nil {
				category, message := service.Classify(err)
				r.RenderError(service.ErrorEmission{Category: category, Message: message})
				continue
			}
			_ = svc.QueryByCoordinates(ctx, lat, lon)
		case ":l":
			_ = svc.QueryByLocator(ctx, a.locator())
		case ":r":
			_ = svc.Retry(ctx)
		case ":u":
			unit, err := a.settings.ToggleUnit(ctx)
			if err != nil {
				a.logger.Warn("toggle unit failed", zap.Error(err))
				continue
			}
			if text != nil {
				s, _ := a.settings.Load(ctx)
				text.SetSettings(s)
				fmt.Fprintf(a.out, "Unit %s\n", unit)
			}
		case ":h", ":help":
			fmt.Fprintln(a.out, sessionHelp)
		default:
			suggester.Input(ctx, line)
		}
	}
}
