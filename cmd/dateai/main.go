package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/db"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/engine"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/llm"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/migrate"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/repo"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dateai",
	Short: "Date plan generator",
	Long: `dateai assembles a timed date itinerary for a Tokyo-area date from a
handful of conditions: area, relationship phase, budget, time slot, mood and
an optional free-text request ("19時に浅草寺に行きたい").

The workspace directory holds .dateai/dateai.db (the curated venue store and
event journal) and optionally dateai.yml overriding the embedded defaults.
With GOOGLE_MAPS_API_KEY set the planner pulls live venues, opening hours and
transit routes; without it everything comes from the curated store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DATEAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(areasCmd())
	rootCmd.AddCommand(venueCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func planCmd() *cobra.Command {
	var (
		area, phase, budget, timeSlot string
		startTime, mood, request, adj string
		movement                      string
		durationMinutes               int
		ngConditions                  []string
		offline                       bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a date plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e *engine.Engine) error {
				cond := domain.Conditions{
					Area:            area,
					Phase:           domain.ParsePhase(phase),
					Budget:          domain.ParseBudget(budget),
					TimeSlot:        domain.ParseTimeSlot(timeSlot),
					StartTime:       startTime,
					DurationMinutes: durationMinutes,
					Mood:            domain.Mood(mood),
					NGConditions:    ngConditions,
					CustomRequest:   request,
				}
				if movement != "" {
					if style, ok := e.Config.MovementStyles[movement]; ok {
						cond.Movement = &domain.MovementPreference{
							Key:           movement,
							Label:         style.Label,
							Focus:         style.Focus,
							MaxLegMinutes: style.MaxLegMinutes,
							MaxAreas:      style.MaxAreas,
						}
					} else {
						return fmt.Errorf("unknown movement style %q", movement)
					}
				}
				buildCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				plan, err := e.BuildPlan(buildCtx, cond, adj, engine.BuildOptions{
					AllowExternal: !offline,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				renderPlan(plan)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "date area (key, label or alias)")
	cmd.Flags().StringVar(&phase, "phase", "casual", "relationship phase (first, second, casual, anniversary)")
	cmd.Flags().StringVar(&budget, "budget", "medium", "budget level (low, medium, high)")
	cmd.Flags().StringVar(&timeSlot, "time-slot", "lunch", "time slot (lunch, dinner, halfday, fullday)")
	cmd.Flags().StringVar(&startTime, "start", "", "explicit start HH:MM (with --duration overrides the time slot)")
	cmd.Flags().IntVar(&durationMinutes, "duration", 0, "total minutes when --start is given")
	cmd.Flags().StringVar(&mood, "mood", "", "mood (relax, active, romantic, casual)")
	cmd.Flags().StringArrayVar(&ngConditions, "ng", []string{}, "NG condition (repeatable: outdoor, indoor, crowd, quiet, walk, rain)")
	cmd.Flags().StringVar(&request, "request", "", "free-text request, e.g. 19時に浅草寺に行きたい")
	cmd.Flags().StringVar(&adj, "adjust", "", "adjustment request applied before building")
	cmd.Flags().StringVar(&movement, "movement", "", "movement style key from config")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip external providers, curated data only")
	_ = cmd.MarkFlagRequired("area")
	return cmd
}

func renderPlan(plan *domain.Plan) {
	fmt.Println(plan.Summary)
	fmt.Println()
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Time", "Type", "Place", "Price", "Note"})
	for _, it := range plan.Schedule {
		note := ""
		switch {
		case it.Kind == domain.KindTravel:
			note = fmt.Sprintf("%dmin %s", it.TravelMinutes, it.TransportMode)
		case it.ClosedWarning != "":
			note = it.ClosedWarning
		case it.IsCustom:
			note = "リクエスト"
		}
		tw.AppendRow(table.Row{it.Time, it.Kind, it.PlaceName, it.PriceRange, note})
	}
	tw.Render()
	fmt.Println()
	fmt.Println("想定費用:", plan.EstimatedCost)
	fmt.Println(plan.Reason)
	if plan.NextStepPhrase != "" {
		fmt.Println(plan.NextStepPhrase)
	}
}

func areasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "List configured date areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				keys := make([]string, 0, len(e.Config.Areas))
				for k := range e.Config.Areas {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				if viper.GetBool("json") {
					return printJSON(e.Config.Areas)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Label", "Station", "Lat", "Lng"})
				for _, k := range keys {
					a := e.Config.Areas[k]
					tw.AppendRow(table.Row{k, a.Label, a.Station.Name, a.Lat, a.Lng})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func venueCmd() *cobra.Command {
	v := &cobra.Command{
		Use:   "venues",
		Short: "Curated venue store",
	}
	v.AddCommand(venueListCmd())
	v.AddCommand(venueAlternativesCmd())
	v.AddCommand(venueAddCmd())
	return v
}

func venueListCmd() *cobra.Command {
	var area string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List curated venues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListVenues(ctx, area)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Area", "Category", "Rating", "Price"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Name, v.Area, v.Category, v.Rating, v.PriceRange})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "area filter")
	return cmd
}

func venueAlternativesCmd() *cobra.Command {
	var area, category, phase, budget, mood string
	var exclude []string
	var limit int
	cmd := &cobra.Command{
		Use:   "alternatives",
		Short: "Alternative venues for one schedule slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				cond := domain.Conditions{
					Area:   area,
					Phase:  domain.ParsePhase(phase),
					Budget: domain.ParseBudget(budget),
					Mood:   domain.Mood(mood),
				}
				items, err := e.ListAlternatives(ctx, cond, category, exclude, limit)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "date area")
	cmd.Flags().StringVar(&category, "category", "", "slot category (lunch, activity, cafe, dinner)")
	cmd.Flags().StringVar(&phase, "phase", "", "relationship phase")
	cmd.Flags().StringVar(&budget, "budget", "", "budget level")
	cmd.Flags().StringVar(&mood, "mood", "", "mood")
	cmd.Flags().StringArrayVar(&exclude, "exclude", []string{}, "venue name or id to skip (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 5, "max results")
	_ = cmd.MarkFlagRequired("area")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func venueAddCmd() *cobra.Command {
	var v domain.Venue
	var lat, lng float64
	var budget, moods, indoorOutdoor string
	var phases, timeSlots []string
	var weatherOK bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a curated venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
				v.Coord = &domain.LatLng{Lat: lat, Lng: lng}
			}
			if v.ID == "" {
				v.ID = fmt.Sprintf("%s-%s-%s", v.Area, v.Category, uuid.New().String()[:8])
			}
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				err := e.Repo.InsertVenue(ctx, v, domain.ParseBudget(budget), phases, timeSlots, moods, indoorOutdoor, weatherOK)
				if err != nil {
					return err
				}
				return printJSONOrIndent(v)
			})
		},
	}
	cmd.Flags().StringVar(&v.ID, "id", "", "venue id (generated if omitted)")
	cmd.Flags().StringVar(&v.Name, "name", "", "venue name")
	cmd.Flags().StringVar(&v.Area, "area", "", "area key")
	cmd.Flags().StringVar(&v.Category, "category", "", "category (lunch, activity, cafe, dinner, walk)")
	cmd.Flags().StringVar(&budget, "budget", "medium", "budget level")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&v.Address, "address", "", "address")
	cmd.Flags().StringVar(&v.PriceRange, "price-range", "", "price range, e.g. 1500-2500")
	cmd.Flags().IntVar(&v.StayMinutes, "stay-minutes", 60, "typical stay minutes")
	cmd.Flags().Float64Var(&v.Rating, "rating", 0, "rating")
	cmd.Flags().StringVar(&v.Description, "description", "", "description")
	cmd.Flags().StringVar(&v.Tips, "tips", "", "visit tips")
	cmd.Flags().StringArrayVar(&phases, "phase", []string{}, "recommended phase (repeatable, default all)")
	cmd.Flags().StringArrayVar(&timeSlots, "time-slot", []string{}, "best time slot (repeatable, default anytime)")
	cmd.Flags().StringVar(&moods, "moods", "", "mood tags, pipe separated")
	cmd.Flags().StringVar(&indoorOutdoor, "indoor-outdoor", "", "indoor or outdoor")
	cmd.Flags().BoolVar(&weatherOK, "weather-ok", true, "usable in bad weather")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("area")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrIndent(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default dateai.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func keysCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the HTTP server",
	}
	k.AddCommand(keysCreateCmd())
	k.AddCommand(keysListCmd())
	k.AddCommand(keysDeleteCmd())
	return k
}

func keysCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the secret once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: viper.GetString("actor-id"),
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "api_key": secret})
				}
				fmt.Printf("API key %s created for %s\n", key.ID, key.ActorID)
				fmt.Printf("Secret (store it now, it is not recoverable): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keysListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func keysDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Plan-generation event journal",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				return printJSONOrIndent(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var insecureDev bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withEngine(ctx, true, func(ctx context.Context, e *engine.Engine) error {
				authCfg := server.AuthConfig{
					JWTSecret:        os.Getenv("DATEAI_JWT_SECRET"),
					AllowInsecureDev: insecureDev,
				}
				if authCfg.JWTSecret == "" && !insecureDev {
					return fmt.Errorf("DATEAI_JWT_SECRET is required unless --insecure-dev is set")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving date plan API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&insecureDev, "insecure-dev", false, "allow unauthenticated requests as the dev actor")
	return cmd
}

// --- helpers ---

// withEngine opens the workspace store and hands a ready engine to fn. When
// external is true the Google and Gemini collaborators are wired from the
// environment if their keys are present.
func withEngine(ctx context.Context, external bool, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	if external {
		wireProviders(ctx, e, cfg)
	}
	return fn(ctx, e)
}

func wireProviders(ctx context.Context, e *engine.Engine, cfg *config.Config) {
	if key := os.Getenv("GOOGLE_MAPS_API_KEY"); key != "" {
		client := places.New(key, os.Getenv("GOOGLE_MAPS_REFERER"))
		seed := make(map[string]domain.LatLng, len(cfg.Areas))
		for _, a := range cfg.Areas {
			seed[a.Label] = domain.LatLng{Lat: a.Lat, Lng: a.Lng}
		}
		client.SeedAreaCache(seed)
		e.Search = client
		e.Details = client
		e.Geocoder = client
		e.Transit = client
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gen, err := llm.New(ctx, key, os.Getenv("GEMINI_MODEL"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning: gemini generator unavailable:", err)
		} else {
			e.Generator = gen
		}
	}
}

func printJSONOrIndent(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
