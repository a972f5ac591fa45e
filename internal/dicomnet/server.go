package dicomnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handler implements the two DIMSE services this SCP exposes. C-FIND,
// C-MOVE, and C-GET are not part of this interface.
type Handler interface {
	// OnCEchoRQ responds to a C-ECHO request. Returning an error causes the
	// server to reply with StatusErrorCannotUnderstand.
	OnCEchoRQ(ctx context.Context, assoc *Association) error

	// OnCStoreRQ handles one C-STORE request's dataset and returns the
	// DIMSE status to report back to the caller. A duplicate SOP Instance UID
	// is not a failure: it reports StatusSuccess, same as a first store, since
	// the instance is already durably present either way.
	OnCStoreRQ(ctx context.Context, assoc *Association, sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset []byte) (uint16, error)
}

// ServerConfig configures the SCP listener.
type ServerConfig struct {
	AETitle                string
	MaxAssociations        int
	MaxPDULength           uint32
	AllowedCallingAETitles []string
	AssociationTimeout     time.Duration
}

// Server accepts DICOM Upper Layer connections and dispatches DIMSE requests
// to a Handler, one goroutine per association.
type Server struct {
	cfg     ServerConfig
	handler Handler
	log     zerolog.Logger

	allowed map[string]bool
	active  int64
}

// NewServer builds a Server. An empty AllowedCallingAETitles list means any
// calling AE title is accepted.
func NewServer(cfg ServerConfig, handler Handler, log zerolog.Logger) *Server {
	allowed := make(map[string]bool, len(cfg.AllowedCallingAETitles))
	for _, ae := range cfg.AllowedCallingAETitles {
		allowed[ae] = true
	}
	if cfg.MaxPDULength == 0 {
		cfg.MaxPDULength = 16384
	}
	if cfg.MaxAssociations == 0 {
		cfg.MaxAssociations = 64
	}
	return &Server{cfg: cfg, handler: handler, log: log.With().Str("component", "dicomscp").Logger(), allowed: allowed}
}

// ListenAndServe listens on address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("dicomnet: listen: %w", err)
	}
	defer listener.Close()
	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or an
// unrecoverable error occurs, joining every spawned association goroutine
// before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.log.Info().Str("address", listener.Addr().String()).Str("ae_title", s.cfg.AETitle).Msg("DICOM SCP listening")

	var wg sync.WaitGroup
	var serveErr error

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Str("remote_addr", conn.RemoteAddr().String()).Logger()

	if atomic.AddInt64(&s.active, 1) > int64(s.cfg.MaxAssociations) {
		atomic.AddInt64(&s.active, -1)
		log.Warn().Msg("rejecting association: max associations exceeded")
		rq, err := readPDU(conn)
		if err == nil && rq.Type == PDUTypeAssociateRQ {
			Reject(conn, RejectResultPermanent, RejectSourceServiceUser, RejectReasonNoReasonGiven)
		}
		return
	}
	defer atomic.AddInt64(&s.active, -1)

	if s.cfg.AssociationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.AssociationTimeout))
	}

	rq, err := readPDU(conn)
	if err != nil {
		log.Debug().Err(err).Msg("failed to read A-ASSOCIATE-RQ")
		return
	}
	if rq.Type != PDUTypeAssociateRQ {
		log.Warn().Uint8("pdu_type", rq.Type).Msg("expected A-ASSOCIATE-RQ")
		return
	}
	if len(rq.Data) < 68 {
		log.Warn().Msg("A-ASSOCIATE-RQ too short")
		return
	}

	callingAE := trimAETitle(rq.Data[20:36])
	if len(s.allowed) > 0 && !s.allowed[callingAE] {
		log.Warn().Str("calling_ae", callingAE).Msg("rejecting association: calling AE title not allowed")
		Reject(conn, RejectResultPermanent, RejectSourceServiceUser, RejectReasonCallingAENotRecognized)
		return
	}

	assoc, err := negotiate(conn, rq, s.cfg.AETitle, IsSupportedAbstractSyntax, log)
	if err != nil {
		log.Warn().Err(err).Msg("association negotiation failed")
		return
	}
	log = log.With().Str("calling_ae", assoc.CallingAETitle()).Logger()
	assoc.log = log

	if !assoc.HasAcceptedContext() {
		log.Warn().Msg("no acceptable presentation context; aborting")
		assoc.Abort(RejectSourceServiceUser, RejectReasonNoReasonGiven)
		return
	}

	log.Info().Msg("association established")

	for {
		msg, err := assoc.readDIMSEMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("association released")
			} else {
				log.Warn().Err(err).Msg("association ended")
			}
			return
		}

		if err := s.dispatch(ctx, assoc, msg); err != nil {
			log.Warn().Err(err).Msg("error dispatching DIMSE message")
			return
		}
	}
}

// IsSupportedAbstractSyntax reports whether this SCP proposes presentation
// contexts for uid: Verification (C-ECHO) or any supported Storage SOP
// Class (C-STORE).
func IsSupportedAbstractSyntax(uid string) bool {
	return uid == VerificationSOPClass || IsStorageSOPClass(uid)
}

func (s *Server) dispatch(ctx context.Context, assoc *Association, msg *dimseMessage) error {
	pc, ok := assoc.AcceptedPresentationContext(msg.PresContextID)
	if !ok {
		return fmt.Errorf("dicomnet: message on non-accepted presentation context %d", msg.PresContextID)
	}

	switch msg.Command.CommandField {
	case CommandCEchoRQ:
		status := StatusSuccess
		if err := s.handler.OnCEchoRQ(ctx, assoc); err != nil {
			status = StatusErrorCannotUnderstand
		}
		resp := &Command{
			CommandField:              CommandCEchoRSP,
			MessageIDBeingRespondedTo: msg.Command.MessageID,
			CommandDataSetType:        NoDataSetPresent,
			Status:                    status,
			AffectedSOPClassUID:       VerificationSOPClass,
		}
		return assoc.sendCommand(msg.PresContextID, resp, nil)

	case CommandCStoreRQ:
		status, err := s.handler.OnCStoreRQ(ctx, assoc, msg.Command.AffectedSOPClassUID, msg.Command.AffectedSOPInstanceUID, pc.TransferSyntax, msg.Dataset)
		if err != nil && status == StatusSuccess {
			status = StatusErrorCannotUnderstand
		}
		resp := &Command{
			CommandField:              CommandCStoreRSP,
			MessageIDBeingRespondedTo: msg.Command.MessageID,
			CommandDataSetType:        NoDataSetPresent,
			Status:                    status,
			AffectedSOPClassUID:       msg.Command.AffectedSOPClassUID,
			AffectedSOPInstanceUID:    msg.Command.AffectedSOPInstanceUID,
		}
		return assoc.sendCommand(msg.PresContextID, resp, nil)

	default:
		return fmt.Errorf("dicomnet: unsupported command field 0x%04x", msg.Command.CommandField)
	}
}
