// Package idp defines the contract between the sign-in flow and a
// Cognito-style identity provider. The wire transport lives outside this
// module; implementations adapt it to Client.
package idp

import "context"

// Auth flow and challenge names understood by the sign-in flow.
const (
	FlowUserSRPAuth = "USER_SRP_AUTH"

	ChallengePasswordVerifier    = "PASSWORD_VERIFIER"
	ChallengeSMSMFA              = "SMS_MFA"
	ChallengeSoftwareTokenMFA    = "SOFTWARE_TOKEN_MFA"
	ChallengeEmailOTP            = "EMAIL_OTP"
	ChallengeNewPasswordRequired = "NEW_PASSWORD_REQUIRED"
	ChallengeSelectMFAType       = "SELECT_MFA_TYPE"
	ChallengeCustom              = "CUSTOM_CHALLENGE"
	ChallengeDeviceSRPAuth       = "DEVICE_SRP_AUTH"
)

// Parameter keys exchanged in auth parameters, challenge parameters and
// challenge responses.
const (
	ParamUsername                 = "USERNAME"
	ParamUserIDForSRP             = "USER_ID_FOR_SRP"
	ParamSRPA                     = "SRP_A"
	ParamSRPB                     = "SRP_B"
	ParamSalt                     = "SALT"
	ParamSecretBlock              = "SECRET_BLOCK"
	ParamSecretHash               = "SECRET_HASH"
	ParamDeviceKey                = "DEVICE_KEY"
	ParamPasswordClaimSecretBlock = "PASSWORD_CLAIM_SECRET_BLOCK"
	ParamPasswordClaimSignature   = "PASSWORD_CLAIM_SIGNATURE"
	ParamTimestamp                = "TIMESTAMP"

	ParamSMSMFACode           = "SMS_MFA_CODE"
	ParamSoftwareTokenMFACode = "SOFTWARE_TOKEN_MFA_CODE"
	ParamEmailOTPCode         = "EMAIL_OTP_CODE"
	ParamNewPassword          = "NEW_PASSWORD"
	ParamAnswer               = "ANSWER"
)

// Client is the narrow identity-provider surface the actions call.
type Client interface {
	InitiateAuth(ctx context.Context, in *InitiateAuthInput) (*InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, in *RespondToAuthChallengeInput) (*RespondToAuthChallengeOutput, error)
}

// AnalyticsMetadata carries the optional analytics endpoint id.
type AnalyticsMetadata struct {
	AnalyticsEndpointID string
}

// UserContextData carries the optional advanced-security payload.
type UserContextData struct {
	EncodedData string
}

type InitiateAuthInput struct {
	AuthFlow          string
	ClientID          string
	AuthParameters    map[string]string
	ClientMetadata    map[string]string
	AnalyticsMetadata *AnalyticsMetadata
	UserContextData   *UserContextData
}

type InitiateAuthOutput struct {
	ChallengeName        string
	ChallengeParameters  map[string]string
	Session              string
	AuthenticationResult *AuthenticationResult
}

type RespondToAuthChallengeInput struct {
	ChallengeName      string
	ClientID           string
	ChallengeResponses map[string]string
	ClientMetadata     map[string]string
	Session            string
	AnalyticsMetadata  *AnalyticsMetadata
	UserContextData    *UserContextData
}

type RespondToAuthChallengeOutput struct {
	ChallengeName        string
	ChallengeParameters  map[string]string
	Session              string
	AuthenticationResult *AuthenticationResult
}

// AuthenticationResult is returned once every challenge is answered.
type AuthenticationResult struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int32
	TokenType    string
	NewDevice    *NewDeviceMetadata
}

// NewDeviceMetadata is issued when the provider tracks a new device.
type NewDeviceMetadata struct {
	DeviceKey      string
	DeviceGroupKey string
}
