package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hailing/internal/accounts"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/history"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/trips"
)

type Deps struct {
	Accounts    *accounts.Service
	Trips       *trips.Service
	History     *history.Service
	Geo         geo.Geo
	Logger      *slog.Logger
	NearbyLimit int
}

type Server struct {
	accounts    *accounts.Service
	trips       *trips.Service
	history     *history.Service
	geo         geo.Geo
	logger      *slog.Logger
	nearbyLimit int
	mux         *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		accounts:    d.Accounts,
		trips:       d.Trips,
		history:     d.History,
		geo:         d.Geo,
		logger:      d.Logger,
		nearbyLimit: d.NearbyLimit,
		mux:         mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.nearbyLimit <= 0 {
		s.nearbyLimit = 10
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/riders/login", s.handleRiderLogin).Methods(http.MethodPost)
	s.mux.HandleFunc("/riders/{id}/trips", s.handleRiderTrips).Methods(http.MethodGet)

	s.mux.HandleFunc("/drivers/login", s.handleDriverLogin).Methods(http.MethodPost)
	s.mux.HandleFunc("/drivers/nearby", s.handleNearby).Methods(http.MethodGet)
	s.mux.HandleFunc("/drivers/{id}/status", s.handleDriverStatus).Methods(http.MethodPost)
	s.mux.HandleFunc("/drivers/{id}/trips", s.handleDriverTrips).Methods(http.MethodGet)

	s.mux.HandleFunc("/trips", s.handleRequestTrip).Methods(http.MethodPost)
	s.mux.HandleFunc("/trips/{id}", s.handleGetTrip).Methods(http.MethodGet)
	s.mux.HandleFunc("/trips/{id}/accept", s.handleAcceptTrip).Methods(http.MethodPost)
	s.mux.HandleFunc("/trips/{id}/start", s.handleStartTrip).Methods(http.MethodPost)
	s.mux.HandleFunc("/trips/{id}/end", s.handleEndTrip).Methods(http.MethodPost)
	s.mux.HandleFunc("/trips/{id}/cancel", s.handleCancelTrip).Methods(http.MethodPost)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type riderLoginRequest struct {
	Phone string `json:"phone" validate:"required"`
	Name  string `json:"name"`
}

type driverLoginRequest struct {
	Phone    string          `json:"phone" validate:"required"`
	Name     string          `json:"name"`
	CarClass models.CarClass `json:"car_class" validate:"required,oneof=mini sedan suv"`
	Vehicle  models.Vehicle  `json:"vehicle"`
}

type driverStatusRequest struct {
	Online   *bool         `json:"online" validate:"required"`
	Location *models.Coord `json:"location"`
}

type tripRequest struct {
	RiderID     string             `json:"rider_id" validate:"required"`
	Pickup      models.Place       `json:"pickup"`
	Drop        models.Place       `json:"drop"`
	CarClass    models.CarClass    `json:"car_class" validate:"required,oneof=mini sedan suv"`
	PaymentMode models.PaymentMode `json:"payment_mode" validate:"omitempty,oneof=cash card wallet"`
	DistanceKm  float64            `json:"distance_km" validate:"gte=0"`
}

type tripResponse struct {
	Trip   models.Trip    `json:"trip"`
	Driver *models.Driver `json:"driver,omitempty"`
}

type driverActionRequest struct {
	DriverID  string   `json:"driver_id" validate:"required"`
	FinalFare *float64 `json:"final_fare,omitempty"`
}

type cancelRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

func (s *Server) handleRiderLogin(w http.ResponseWriter, r *http.Request) {
	var req riderLoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	rider, created, err := s.accounts.LoginRider(r.Context(), accounts.RiderLogin{Phone: req.Phone, Name: strings.TrimSpace(req.Name)})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, loginStatus(created), map[string]any{"rider": rider, "created": created})
}

func (s *Server) handleDriverLogin(w http.ResponseWriter, r *http.Request) {
	var req driverLoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	driver, created, err := s.accounts.LoginDriver(r.Context(), accounts.DriverLogin{
		Phone:    req.Phone,
		Name:     strings.TrimSpace(req.Name),
		CarClass: req.CarClass,
		Vehicle:  req.Vehicle,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, loginStatus(created), map[string]any{"driver": driver, "created": created})
}

func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	var req driverStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Location != nil {
		if err := validateCoord(*req.Location); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	d, err := s.accounts.UpdateDriverStatus(r.Context(), accounts.StatusUpdate{
		DriverID: mux.Vars(r)["id"],
		Online:   *req.Online,
		Location: req.Location,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, r, fmt.Errorf("lat and lon are required numbers: %w", models.ErrValidation))
		return
	}
	if err := validateCoord(models.Coord{Lat: lat, Lon: lon}); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := s.nearbyLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("limit must be a positive integer: %w", models.ErrValidation))
			return
		}
		if n < limit {
			limit = n
		}
	}
	drivers, err := s.geo.Nearby(r.Context(), lat, lon, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": drivers})
}

func (s *Server) handleRequestTrip(w http.ResponseWriter, r *http.Request) {
	var req tripRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.trips.RequestTrip(r.Context(), trips.RequestCommand{
		RiderID:     req.RiderID,
		Pickup:      req.Pickup,
		Drop:        req.Drop,
		CarClass:    req.CarClass,
		PaymentMode: req.PaymentMode,
		DistanceKm:  req.DistanceKm,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tripResponse{Trip: res.Trip, Driver: res.Driver})
}

// validate covers the checks struct tags cannot express and fills defaults.
func (req *tripRequest) validate() error {
	var problems []string
	if req.PaymentMode == "" {
		req.PaymentMode = models.PayCash
	}
	for _, p := range []struct {
		name  string
		place models.Place
	}{{"pickup", req.Pickup}, {"drop", req.Drop}} {
		if strings.TrimSpace(p.place.Address) == "" && p.place.Coord == nil {
			problems = append(problems, p.name+" needs an address or coordinates")
		}
		if p.place.Coord != nil && validateCoord(*p.place.Coord) != nil {
			problems = append(problems, p.name+" coordinates out of range")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), models.ErrValidation)
	}
	return nil
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAcceptTrip(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDriverAction(w, r)
	if !ok {
		return
	}
	t, err := s.trips.AcceptTrip(r.Context(), trips.AcceptCommand{TripID: mux.Vars(r)["id"], DriverID: req.DriverID})
	s.writeTrip(w, r, t, err)
}

func (s *Server) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDriverAction(w, r)
	if !ok {
		return
	}
	t, err := s.trips.StartTrip(r.Context(), trips.StartCommand{TripID: mux.Vars(r)["id"], DriverID: req.DriverID})
	s.writeTrip(w, r, t, err)
}

func (s *Server) handleEndTrip(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDriverAction(w, r)
	if !ok {
		return
	}
	t, err := s.trips.EndTrip(r.Context(), trips.EndCommand{TripID: mux.Vars(r)["id"], DriverID: req.DriverID, FinalFare: req.FinalFare})
	s.writeTrip(w, r, t, err)
}

func (s *Server) handleCancelTrip(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	t, err := s.trips.CancelTrip(r.Context(), trips.CancelCommand{TripID: mux.Vars(r)["id"], ActorID: req.ActorID})
	s.writeTrip(w, r, t, err)
}

func (s *Server) handleRiderTrips(w http.ResponseWriter, r *http.Request) {
	list, err := s.history.TripsForRider(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": list})
}

func (s *Server) handleDriverTrips(w http.ResponseWriter, r *http.Request) {
	list, err := s.history.TripsForDriver(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": list})
}

func (s *Server) decodeDriverAction(w http.ResponseWriter, r *http.Request) (driverActionRequest, bool) {
	var req driverActionRequest
	ok := s.decode(w, r, &req)
	return req, ok
}

func (s *Server) writeTrip(w http.ResponseWriter, r *http.Request, t models.Trip, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func validateCoord(c models.Coord) error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("coordinates out of range: %w", models.ErrValidation)
	}
	return nil
}

func loginStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}
