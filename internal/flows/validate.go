package flows

// ValidateFailureKind classifies access-token validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMissing
	ValidateFailureDecode
)

// Identity is the subject an access token speaks for.
type Identity struct {
	Subject string
	Name    string
	Role    string
	TokenID string
}

// ValidateResult carries the identity or failure metadata.
type ValidateResult struct {
	Failure  ValidateFailureKind
	Err      error
	Identity Identity
}

// ValidateDeps captures access validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (Identity, error)
}

// RunValidate checks an access token without touching the session store; access
// tokens are never persisted server-side.
func RunValidate(token string, deps ValidateDeps) ValidateResult {
	if token == "" {
		return ValidateResult{Failure: ValidateFailureMissing}
	}
	id, err := deps.ParseAccess(token)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureDecode, Err: err}
	}
	return ValidateResult{Failure: ValidateFailureNone, Identity: id}
}
