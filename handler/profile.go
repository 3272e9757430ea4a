package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"trainer-agent/internal/domain"
	"trainer-agent/internal/repository"
)

// corsHeaders is attached to every profile response so the onboarding form
// can call the API from the browser.
var corsHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET,POST,PUT,DELETE,OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type",
}

// requiredProfileFields must all be present in an onboarding submission.
var requiredProfileFields = []string{
	"lineId",
	"birthDate",
	"gender",
	"height",
	"weight",
	"targetWeight",
	"targetPeriod",
	"priority",
	"pastExperience",
	"exerciseFrequency",
	"mealFrequency",
	"alcoholFrequency",
	"allergies",
	"restrictions",
	"illness",
	"motivation",
}

// ProfileRepository is the storage surface the profile handler requires.
type ProfileRepository interface {
	Create(ctx context.Context, p domain.UserProfile) (domain.UserProfile, error)
	Get(ctx context.Context, lineID string) (domain.UserProfile, error)
	Update(ctx context.Context, lineID string, fields map[string]string) (map[string]string, error)
	Delete(ctx context.Context, lineID string) (domain.UserProfile, error)
}

// ProfileHandler is the Lambda boundary for profile CRUD.
type ProfileHandler struct {
	store ProfileRepository
	log   *slog.Logger
}

func NewProfileHandler(store ProfileRepository, log *slog.Logger) (*ProfileHandler, error) {
	if store == nil {
		return nil, errors.New("handler: profile repository must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProfileHandler{store: store, log: log}, nil
}

func (h *ProfileHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch req.HTTPMethod {
	case http.MethodOptions:
		return profileResponse(http.StatusOK, map[string]any{"message": "OK"}), nil
	case http.MethodGet:
		return h.get(ctx, req), nil
	case http.MethodPost:
		return h.create(ctx, req), nil
	case http.MethodPut:
		return h.update(ctx, req), nil
	case http.MethodDelete:
		return h.delete(ctx, req), nil
	default:
		return profileResponse(http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"}), nil
	}
}

func (h *ProfileHandler) get(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	lineID := requestLineID(req)
	if lineID == "" {
		return profileResponse(http.StatusBadRequest, map[string]any{"error": "lineId is required"})
	}

	profile, err := h.store.Get(ctx, lineID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return profileResponse(http.StatusNotFound, map[string]any{"error": "Profile not found"})
		}
		h.log.Error("profile read failed", "lineId", lineID, "err", err)
		return profileResponse(http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	}

	return profileResponse(http.StatusOK, map[string]any{
		"message": "Profile retrieved successfully",
		"data":    profile,
	})
}

func (h *ProfileHandler) create(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	fields, err := decodeProfileBody(req.Body)
	if err != nil {
		return profileResponse(http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
	}

	var missing []string
	for _, name := range requiredProfileFields {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return profileResponse(http.StatusBadRequest, map[string]any{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
	}

	profile, err := h.store.Create(ctx, profileFromFields(fields))
	if err != nil {
		if errors.Is(err, repository.ErrProfileExists) {
			return profileResponse(http.StatusConflict, map[string]any{"error": "Profile already exists"})
		}
		h.log.Error("profile creation failed", "lineId", fields["lineId"], "err", err)
		return profileResponse(http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	}

	return profileResponse(http.StatusOK, map[string]any{
		"message": "Profile created successfully",
		"data":    profile,
	})
}

func (h *ProfileHandler) update(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	lineID := requestLineID(req)
	if lineID == "" {
		return profileResponse(http.StatusBadRequest, map[string]any{"error": "lineId is required"})
	}

	fields, err := decodeProfileBody(req.Body)
	if err != nil {
		return profileResponse(http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
	}

	// Silently drop non-updatable fields; only the allow-listed subset is
	// ever written.
	updates := make(map[string]string, len(fields))
	for name, value := range fields {
		if repository.IsUpdatableProfileField(name) {
			updates[name] = value
		}
	}
	if len(updates) == 0 {
		return profileResponse(http.StatusBadRequest, map[string]any{"error": "No valid fields to update"})
	}

	updated, err := h.store.Update(ctx, lineID, updates)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return profileResponse(http.StatusNotFound, map[string]any{"error": "Profile not found"})
		}
		h.log.Error("profile update failed", "lineId", lineID, "err", err)
		return profileResponse(http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	}

	return profileResponse(http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"data":    updated,
	})
}

func (h *ProfileHandler) delete(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	lineID := requestLineID(req)
	if lineID == "" {
		return profileResponse(http.StatusBadRequest, map[string]any{"error": "lineId is required"})
	}

	profile, err := h.store.Delete(ctx, lineID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return profileResponse(http.StatusNotFound, map[string]any{"error": "Profile not found"})
		}
		h.log.Error("profile deletion failed", "lineId", lineID, "err", err)
		return profileResponse(http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	}

	return profileResponse(http.StatusOK, map[string]any{
		"message": "Profile deleted successfully",
		"data":    profile,
	})
}

// requestLineID resolves the target lineId from path parameters first, then
// the query string.
func requestLineID(req events.APIGatewayProxyRequest) string {
	if id := req.PathParameters["lineId"]; id != "" {
		return id
	}
	return req.QueryStringParameters["lineId"]
}

// decodeProfileBody parses a JSON object into string fields. Numeric values
// are preserved verbatim via json.Number; nested objects and arrays are
// rejected.
func decodeProfileBody(body string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			fields[name] = v
		case json.Number:
			fields[name] = v.String()
		case bool:
			if v {
				fields[name] = "true"
			} else {
				fields[name] = "false"
			}
		case nil:
			fields[name] = ""
		default:
			return nil, fmt.Errorf("field %q has unsupported type", name)
		}
	}
	return fields, nil
}

func profileFromFields(fields map[string]string) domain.UserProfile {
	return domain.UserProfile{
		LineID:            fields["lineId"],
		BirthDate:         fields["birthDate"],
		Gender:            fields["gender"],
		Height:            fields["height"],
		Weight:            fields["weight"],
		TargetWeight:      fields["targetWeight"],
		TargetPeriod:      fields["targetPeriod"],
		Priority:          fields["priority"],
		PastExperience:    fields["pastExperience"],
		ExerciseFrequency: fields["exerciseFrequency"],
		MealFrequency:     fields["mealFrequency"],
		AlcoholFrequency:  fields["alcoholFrequency"],
		Allergies:         fields["allergies"],
		Restrictions:      fields["restrictions"],
		Illness:           fields["illness"],
		Motivation:        fields["motivation"],
	}
}

func profileResponse(status int, payload map[string]any) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(payload)
	headers := make(map[string]string, len(corsHeaders))
	for k, v := range corsHeaders {
		headers[k] = v
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(body),
	}
}
