package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/service"
)

// ProposalHandler serves proposal routes, including acceptance.
type ProposalHandler struct {
	proposals  *service.ProposalService
	acceptance *service.AcceptanceService
}

// NewProposalHandler creates a new proposal handler.
func NewProposalHandler(proposals *service.ProposalService, acceptance *service.AcceptanceService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals, acceptance: acceptance}
}

func withProposal(c *gin.Context) string {
	id := c.Param("id")
	c.Request = c.Request.WithContext(logger.SetProposalID(c.Request.Context(), id))
	return id
}

// CreateProposal handles POST /proposals.
func (h *ProposalHandler) CreateProposal(c *gin.Context) {
	freelancer, ok := requireActor(c, "freelancer_address")
	if !ok {
		return
	}
	var req domain.ProposalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.proposals.CreateProposal(c.Request.Context(), freelancer, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetProposal handles GET /proposals/:id.
func (h *ProposalHandler) GetProposal(c *gin.Context) {
	p, err := h.proposals.GetProposal(c.Request.Context(), withProposal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListJobProposals handles GET /proposals/job/:id.
func (h *ProposalHandler) ListJobProposals(c *gin.Context) {
	list, err := h.proposals.ListJobProposals(c.Request.Context(), withJob(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": list, "total": len(list)})
}

// ListFreelancerProposals handles GET /proposals/freelancer/:addr.
func (h *ProposalHandler) ListFreelancerProposals(c *gin.Context) {
	list, err := h.proposals.ListFreelancerProposals(c.Request.Context(), c.Param("addr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": list, "total": len(list)})
}

// AcceptProposal handles PUT /proposals/:id/accept.
func (h *ProposalHandler) AcceptProposal(c *gin.Context) {
	id := withProposal(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	res, err := h.acceptance.AcceptProposal(c.Request.Context(), id, client)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RejectProposal handles PUT /proposals/:id/reject.
func (h *ProposalHandler) RejectProposal(c *gin.Context) {
	id := withProposal(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	p, err := h.proposals.RejectProposal(c.Request.Context(), id, client)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// WithdrawProposal handles PUT /proposals/:id/withdraw.
func (h *ProposalHandler) WithdrawProposal(c *gin.Context) {
	id := withProposal(c)
	freelancer, ok := requireActor(c, "freelancer_address")
	if !ok {
		return
	}
	if err := h.proposals.WithdrawProposal(c.Request.Context(), id, freelancer); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": true})
}
