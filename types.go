package srpflow

import (
	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/idp"
)

// AuthChallenge is a challenge issued by the identity provider.
type AuthChallenge = authenv.AuthChallenge

// SignedInData describes the signed-in user.
type SignedInData = authenv.SignedInData

// Tokens are the credentials issued on a completed sign-in.
type Tokens = authenv.Tokens

// SignInStep tells the host what to do after SignIn or ConfirmSignIn.
type SignInStep string

const (
	StepDone                        SignInStep = "DONE"
	StepConfirmWithPasswordVerifier SignInStep = "CONFIRM_SIGN_IN_WITH_PASSWORD_VERIFIER"
	StepConfirmWithSMSCode          SignInStep = "CONFIRM_SIGN_IN_WITH_SMS_CODE"
	StepConfirmWithTOTPCode         SignInStep = "CONFIRM_SIGN_IN_WITH_TOTP_CODE"
	StepConfirmWithEmailCode        SignInStep = "CONFIRM_SIGN_IN_WITH_EMAIL_CODE"
	StepConfirmWithNewPassword      SignInStep = "CONFIRM_SIGN_IN_WITH_NEW_PASSWORD_REQUIRED"
	StepContinueWithMFASelection    SignInStep = "CONTINUE_SIGN_IN_WITH_MFA_SELECTION"
	StepConfirmWithCustomChallenge  SignInStep = "CONFIRM_SIGN_IN_WITH_CUSTOM_CHALLENGE"
)

var challengeSteps = map[string]SignInStep{
	idp.ChallengePasswordVerifier:    StepConfirmWithPasswordVerifier,
	idp.ChallengeSMSMFA:              StepConfirmWithSMSCode,
	idp.ChallengeSoftwareTokenMFA:    StepConfirmWithTOTPCode,
	idp.ChallengeEmailOTP:            StepConfirmWithEmailCode,
	idp.ChallengeNewPasswordRequired: StepConfirmWithNewPassword,
	idp.ChallengeSelectMFAType:       StepContinueWithMFASelection,
	idp.ChallengeCustom:              StepConfirmWithCustomChallenge,
}

// StepForChallenge maps a challenge name to the step the host must take.
func StepForChallenge(name string) (SignInStep, bool) {
	step, ok := challengeSteps[name]
	return step, ok
}

// SignInResult is the outcome of SignIn or ConfirmSignIn. When SignedIn is
// false, Challenge holds the challenge to answer with ConfirmSignIn.
type SignInResult struct {
	SignedIn  bool
	NextStep  SignInStep
	AttemptID string
	Challenge AuthChallenge
	Data      SignedInData
}
