package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/veracart/veracart-backend/api/responses"
	"github.com/veracart/veracart-backend/api/validators"
	"github.com/veracart/veracart-backend/internal/issuer"
	"github.com/veracart/veracart-backend/internal/redemption"
	pkgerrors "github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
)

// VerifyCode checks a code without consuming it. The purchase identifiers in
// the body are optional; when present the binding is checked too.
func VerifyCode(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "redemption service unavailable"))
			return
		}

		var params redemption.VerifyParams
		if err := validators.DecodeJSONBody(r, &params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// IssueCode issues (or re-returns) the code for a single purchase.
func IssueCode(svc issuer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuer service unavailable"))
			return
		}

		var params issuer.IssueParams
		if err := validators.DecodeJSONBody(r, &params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issued, err := svc.Issue(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if issued.AlreadyIssued {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, issued)
	}
}

type issueBatchRequest struct {
	Items []issuer.IssueParams `json:"items" validate:"required,min=1,dive"`
}

type issueBatchResponse struct {
	Issued   []issuer.BatchResult `json:"issued"`
	Failures []string             `json:"failures,omitempty"`
}

// IssueCodeBatch issues codes for up to the configured maximum of purchases
// in one call. Partial failure returns the successes alongside the failures.
func IssueCodeBatch(svc issuer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuer service unavailable"))
			return
		}

		var req issueBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.IssueMany(r.Context(), req.Items)
		if err != nil && len(results) == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := issueBatchResponse{Issued: results}
		for _, failure := range multierr.Errors(err) {
			resp.Failures = append(resp.Failures, failure.Error())
		}
		responses.WriteSuccess(w, resp)
	}
}

// RegisterCode anchors an issued code's commitment on the ledger.
func RegisterCode(svc issuer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuer service unavailable"))
			return
		}

		codeID, err := validators.ParseURLParamUUID(r, "codeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		registered, err := svc.RegisterOnLedger(r.Context(), codeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, registered)
	}
}

// RevealCode returns the plaintext code bound to a purchase for redelivery to
// the buyer. Service-authenticated callers only.
func RevealCode(svc issuer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuer service unavailable"))
			return
		}

		orderID, err := validators.ParseQueryUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseQueryUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		buyerID, err := validators.ParseQueryUUID(r, "buyerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		revealed, err := svc.Reveal(r.Context(), issuer.IssueParams{
			OrderID:   orderID,
			ProductID: productID,
			BuyerID:   buyerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, revealed)
	}
}
