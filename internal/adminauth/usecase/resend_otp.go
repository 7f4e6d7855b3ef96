package usecase

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

type ResendOTPInput struct {
	Email     string `validate:"required,max=254"`
	IP        string
	UserAgent string
}

// ResendOTP issues a replacement code for a caller already at the otp step.
// The previous code stops working and the same cooldown and quota apply.
func (s *Usecase) ResendOTP(ctx context.Context, in ResendOTPInput) (*RequestOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "ResendOTP")
	defer span.End()

	in.Email = otp.NormalizeEmail(in.Email)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	return s.issueOTP(ctx, in.Email, client{IP: in.IP, UserAgent: in.UserAgent}, entity.StepOTP)
}
