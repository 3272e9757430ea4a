package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"trainer-agent/internal/domain"
)

// ErrProfileNotFound is returned when no profile row exists for a lineId.
var ErrProfileNotFound = errors.New("repository: profile not found")

// ErrProfileExists is returned when creating a profile for a lineId that
// already has one.
var ErrProfileExists = errors.New("repository: profile already exists")

// updatableProfileFields is the allow-list for partial updates. profileId,
// lineId and the audit stamps are never client-writable.
var updatableProfileFields = map[string]bool{
	"birthDate":         true,
	"gender":            true,
	"height":            true,
	"weight":            true,
	"targetWeight":      true,
	"targetPeriod":      true,
	"motivation":        true,
	"pastExperience":    true,
	"exerciseFrequency": true,
	"mealFrequency":     true,
	"alcoholFrequency":  true,
	"allergies":         true,
	"restrictions":      true,
	"illness":           true,
}

// IsUpdatableProfileField reports whether a field may be set via partial
// update.
func IsUpdatableProfileField(name string) bool {
	return updatableProfileFields[name]
}

// profileAPI is the minimal DynamoDB surface required by ProfileStore.
type profileAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ProfileStore wraps the per-user profile table keyed by lineId.
type ProfileStore struct {
	api       profileAPI
	tableName string

	now func() time.Time
}

func NewProfileStore(api profileAPI, tableName string) (*ProfileStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ProfileStore{api: api, tableName: tableName, now: time.Now}, nil
}

// Create writes a new profile row, generating profileId (lineId + creation
// epoch) and stamping createdAt/updatedAt. Fails with ErrProfileExists when
// the lineId already has a profile.
func (s *ProfileStore) Create(ctx context.Context, p domain.UserProfile) (domain.UserProfile, error) {
	if strings.TrimSpace(p.LineID) == "" {
		return domain.UserProfile{}, errors.New("repository: Create: lineId is required")
	}

	epoch := strconv.FormatInt(s.now().Unix(), 10)
	p.ProfileID = p.LineID + "-" + epoch
	p.CreatedAt = epoch
	p.UpdatedAt = epoch

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                profileItem(p),
		ConditionExpression: aws.String("attribute_not_exists(lineId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.UserProfile{}, ErrProfileExists
		}
		return domain.UserProfile{}, fmt.Errorf("repository: Create: %w", err)
	}
	return p, nil
}

// Get reads the profile for a lineId, or ErrProfileNotFound.
func (s *ProfileStore) Get(ctx context.Context, lineID string) (domain.UserProfile, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       profileKey(lineID),
	})
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UserProfile{}, ErrProfileNotFound
	}
	return itemToProfile(out.Item), nil
}

// Update applies allow-listed fields to an existing profile and re-stamps
// updatedAt. It returns the updated attribute values. Unknown fields must be
// filtered by the caller; any remaining here are rejected.
func (s *ProfileStore) Update(ctx context.Context, lineID string, fields map[string]string) (map[string]string, error) {
	if strings.TrimSpace(lineID) == "" {
		return nil, errors.New("repository: Update: lineId is required")
	}
	if len(fields) == 0 {
		return nil, errors.New("repository: Update: no fields to update")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if !updatableProfileFields[name] {
			return nil, fmt.Errorf("repository: Update: field %q is not updatable", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	exprParts := make([]string, 0, len(names)+1)
	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]types.AttributeValue, len(names)+1)
	for i, name := range names {
		ph := fmt.Sprintf("#f%d", i)
		vp := fmt.Sprintf(":v%d", i)
		exprParts = append(exprParts, ph+" = "+vp)
		exprNames[ph] = name
		exprValues[vp] = &types.AttributeValueMemberS{Value: fields[name]}
	}
	exprParts = append(exprParts, "#updatedAt = :updatedAt")
	exprNames["#updatedAt"] = "updatedAt"
	exprValues[":updatedAt"] = &types.AttributeValueMemberS{Value: strconv.FormatInt(s.now().Unix(), 10)}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       profileKey(lineID),
		UpdateExpression:          aws.String("SET " + strings.Join(exprParts, ", ")),
		ConditionExpression:       aws.String("attribute_exists(lineId)"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("repository: Update: %w", err)
	}

	updated := make(map[string]string, len(out.Attributes))
	for key, attr := range out.Attributes {
		if s, ok := attr.(*types.AttributeValueMemberS); ok {
			updated[key] = s.Value
		}
	}
	return updated, nil
}

// Delete removes the profile row and returns the prior value, or
// ErrProfileNotFound when none existed.
func (s *ProfileStore) Delete(ctx context.Context, lineID string) (domain.UserProfile, error) {
	out, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          profileKey(lineID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("repository: Delete: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return domain.UserProfile{}, ErrProfileNotFound
	}
	return itemToProfile(out.Attributes), nil
}

func profileKey(lineID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"lineId": &types.AttributeValueMemberS{Value: lineID},
	}
}

func profileItem(p domain.UserProfile) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"lineId":    &types.AttributeValueMemberS{Value: p.LineID},
		"profileId": &types.AttributeValueMemberS{Value: p.ProfileID},
		"createdAt": &types.AttributeValueMemberS{Value: p.CreatedAt},
		"updatedAt": &types.AttributeValueMemberS{Value: p.UpdatedAt},
	}
	for name, value := range map[string]string{
		"birthDate":         p.BirthDate,
		"gender":            p.Gender,
		"height":            p.Height,
		"weight":            p.Weight,
		"targetWeight":      p.TargetWeight,
		"targetPeriod":      p.TargetPeriod,
		"priority":          p.Priority,
		"pastExperience":    p.PastExperience,
		"exerciseFrequency": p.ExerciseFrequency,
		"mealFrequency":     p.MealFrequency,
		"alcoholFrequency":  p.AlcoholFrequency,
		"allergies":         p.Allergies,
		"restrictions":      p.Restrictions,
		"illness":           p.Illness,
		"motivation":        p.Motivation,
	} {
		item[name] = &types.AttributeValueMemberS{Value: value}
	}
	return item
}

func itemToProfile(item map[string]types.AttributeValue) domain.UserProfile {
	get := func(key string) string {
		if s, ok := item[key].(*types.AttributeValueMemberS); ok {
			return s.Value
		}
		return ""
	}
	return domain.UserProfile{
		LineID:            get("lineId"),
		ProfileID:         get("profileId"),
		BirthDate:         get("birthDate"),
		Gender:            get("gender"),
		Height:            get("height"),
		Weight:            get("weight"),
		TargetWeight:      get("targetWeight"),
		TargetPeriod:      get("targetPeriod"),
		Priority:          get("priority"),
		PastExperience:    get("pastExperience"),
		ExerciseFrequency: get("exerciseFrequency"),
		MealFrequency:     get("mealFrequency"),
		AlcoholFrequency:  get("alcoholFrequency"),
		Allergies:         get("allergies"),
		Restrictions:      get("restrictions"),
		Illness:           get("illness"),
		Motivation:        get("motivation"),
		CreatedAt:         get("createdAt"),
		UpdatedAt:         get("updatedAt"),
	}
}
