package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/db"
	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// Link roles
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// linkChannel resolves a channel taking part in links.
func (s *Service) linkChannel(ctx context.Context, entryID, address string) (*device.Device, *device.Channel, error) {
	d, err := s.db.Devices().GetByChannel(ctx, entryID, address)
	if err != nil {
		return nil, nil, err
	}
	ch, ok := d.Channel(address)
	if !ok {
		return nil, nil, device.ErrChannelNotFound
	}
	return d, ch, nil
}

// channelNames maps every channel address of an entry to its device name.
func (s *Service) channelNames(ctx context.Context, entryID string) (map[string]string, error) {
	devices, err := s.db.Devices().List(ctx, entryID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string)
	for _, d := range devices {
		for _, ch := range d.Channels {
			names[ch.Address] = d.Name
		}
	}
	return names, nil
}

// ListDeviceLinks lists the links of any channel of a device. Direction is
// outgoing when the device sends.
func (s *Service) ListDeviceLinks(ctx context.Context, p rpc.DeviceLinksParams) (*rpc.LinksResult, error) {
	if p.EntryID == "" || p.DeviceAddress == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "entry_id and device_address are required")
	}
	if _, err := s.db.Devices().Get(ctx, p.EntryID, p.DeviceAddress); err != nil {
		return nil, err
	}
	records, err := s.db.Links().List(ctx, p.EntryID, p.DeviceAddress)
	if err != nil {
		return nil, err
	}
	names, err := s.channelNames(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}

	res := &rpc.LinksResult{Links: make([]paramset.Link, 0, len(records))}
	for _, r := range records {
		l := r.Link
		l.SenderName = names[l.SenderAddress]
		l.ReceiverName = names[l.ReceiverAddress]
		l.Direction = "incoming"
		if deviceOf(l.SenderAddress) == p.DeviceAddress {
			l.Direction = "outgoing"
		}
		res.Links = append(res.Links, l)
	}
	return res, nil
}

// deviceOf returns the device address of a channel address.
func deviceOf(channel string) string {
	if i := strings.LastIndex(channel, ":"); i >= 0 {
		return channel[:i]
	}
	return channel
}

func checkLinkRef(ref rpc.LinkRef) error {
	if ref.EntryID == "" || ref.ChannelAddress == "" || ref.PeerAddress == "" {
		return rpc.Errorf(rpc.CodeInvalidRequest, "entry_id, channel_address and peer_address are required")
	}
	return nil
}

// linkSchema assembles the link paramset schema of one endpoint.
func (s *Service) linkSchema(ctx context.Context, ref rpc.LinkRef) (*paramset.LinkFormSchema, *device.Device, *db.LinkRecord, error) {
	if err := checkLinkRef(ref); err != nil {
		return nil, nil, nil, err
	}
	link, err := s.db.Links().Find(ctx, ref.EntryID, ref.ChannelAddress, ref.PeerAddress)
	if err != nil {
		return nil, nil, nil, err
	}
	d, ch, err := s.linkChannel(ctx, ref.EntryID, ref.ChannelAddress)
	if err != nil {
		return nil, nil, nil, err
	}
	sections, err := s.db.Paramsets().Description(ctx, ref.EntryID, ref.ChannelAddress, paramset.KeyLink)
	if err != nil {
		return nil, nil, nil, err
	}
	values, err := s.db.Links().Values(ctx, ref.EntryID, ref.ChannelAddress, ref.PeerAddress)
	if err != nil {
		return nil, nil, nil, err
	}

	fs := &paramset.LinkFormSchema{
		FormSchema: paramset.FormSchema{
			EntryID:        ref.EntryID,
			InterfaceID:    ref.InterfaceID,
			ChannelAddress: ref.ChannelAddress,
			ChannelType:    ch.Type,
			ParamsetKey:    paramset.KeyLink,
			Sections:       fill(sections, values),
		},
		PeerAddress: ref.PeerAddress,
	}
	if link.ReceiverAddress == ref.ChannelAddress {
		fs.Profiles = link.Profiles
	}
	fs.Count()
	return fs, d, link, nil
}

// GetLinkFormSchema returns the schema of one endpoint of a link. Only the
// receiver side carries profiles.
func (s *Service) GetLinkFormSchema(ctx context.Context, ref rpc.LinkRef) (*paramset.LinkFormSchema, error) {
	fs, _, _, err := s.linkSchema(ctx, ref)
	return fs, err
}

// GetLinkParamset returns the values of one endpoint of a link.
func (s *Service) GetLinkParamset(ctx context.Context, ref rpc.LinkRef) (*rpc.ParamsetResult, error) {
	fs, _, _, err := s.linkSchema(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &rpc.ParamsetResult{Values: currentValues(&fs.FormSchema)}, nil
}

// PutLinkParamset validates and writes the values of one endpoint.
func (s *Service) PutLinkParamset(ctx context.Context, p rpc.PutLinkParamsetParams) (*rpc.PutParamsetResult, error) {
	fs, d, _, err := s.linkSchema(ctx, p.LinkRef)
	if err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateValues(fs.Parameters(), p.Values); errs != nil {
		return &rpc.PutParamsetResult{Validated: false, ValidationErrors: errs}, nil
	}

	changes := make(map[string]paramset.ValueChange)
	for id, v := range p.Values {
		param, ok := fs.Parameter(id)
		if ok && !paramset.Equal(param.CurrentValue, v) {
			changes[id] = paramset.ValueChange{Old: param.CurrentValue, New: v}
		}
	}
	if err := s.db.Links().PutValues(ctx, p.EntryID, p.ChannelAddress, p.PeerAddress, p.Values); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		entry := &paramset.HistoryEntry{
			EntryID:        p.EntryID,
			DeviceAddress:  d.Address,
			DeviceName:     d.Name,
			ChannelAddress: p.ChannelAddress,
			ParamsetKey:    paramset.KeyLink,
			Changes:        changes,
		}
		if err := s.db.History().Append(ctx, entry); err != nil {
			return nil, err
		}
	}
	log.Info().Str("channel", p.ChannelAddress).Str("peer", p.PeerAddress).Int("values", len(p.Values)).Msg("Link paramset written")
	return &rpc.PutParamsetResult{Success: true, Validated: true}, nil
}

// AddLink peers a sender with a receiver channel. Both endpoints start
// with the defaults of their link paramsets.
func (s *Service) AddLink(ctx context.Context, p rpc.AddLinkParams) (*rpc.SuccessResult, error) {
	if p.EntryID == "" || p.SenderAddress == "" || p.ReceiverAddress == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "entry_id, sender_address and receiver_address are required")
	}
	if p.SenderAddress == p.ReceiverAddress {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "a channel cannot be linked to itself")
	}
	sender, senderCh, err := s.linkChannel(ctx, p.EntryID, p.SenderAddress)
	if err != nil {
		return nil, err
	}
	receiver, receiverCh, err := s.linkChannel(ctx, p.EntryID, p.ReceiverAddress)
	if err != nil {
		return nil, err
	}
	if db.LinkRole(senderCh.Type) != RoleSender {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "%s cannot send", p.SenderAddress)
	}
	if db.LinkRole(receiverCh.Type) != RoleReceiver {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "%s cannot receive", p.ReceiverAddress)
	}

	name := p.Name
	if name == "" {
		name = fmt.Sprintf("%s → %s", sender.Name, receiver.Name)
	}
	link := &db.LinkRecord{
		Link: paramset.Link{
			SenderAddress:   p.SenderAddress,
			ReceiverAddress: p.ReceiverAddress,
			Name:            name,
			Description:     p.Description,
		},
		EntryID:  p.EntryID,
		Profiles: db.DefaultLinkProfiles(receiverCh.Type),
	}
	if err := s.db.Links().Create(ctx, link); err != nil {
		return nil, err
	}

	peers := map[*device.Channel]string{senderCh: p.ReceiverAddress, receiverCh: p.SenderAddress}
	for ch, peer := range peers {
		sections, ok := db.LinkDescription(ch.Type)
		if !ok {
			continue
		}
		if err := s.db.Paramsets().PutDescription(ctx, p.EntryID, ch.Address, paramset.KeyLink, sections); err != nil {
			return nil, err
		}
		if err := s.db.Links().PutValues(ctx, p.EntryID, ch.Address, peer, db.Defaults(sections)); err != nil {
			return nil, err
		}
	}
	log.Info().Str("sender", p.SenderAddress).Str("receiver", p.ReceiverAddress).Msg("Link added")
	return &rpc.SuccessResult{Success: true}, nil
}

// RemoveLink deletes a link and the values of both endpoints.
func (s *Service) RemoveLink(ctx context.Context, p rpc.RemoveLinkParams) (*rpc.SuccessResult, error) {
	if p.EntryID == "" || p.SenderAddress == "" || p.ReceiverAddress == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "entry_id, sender_address and receiver_address are required")
	}
	if err := s.db.Links().Delete(ctx, p.EntryID, p.SenderAddress, p.ReceiverAddress); err != nil {
		return nil, err
	}
	log.Info().Str("sender", p.SenderAddress).Str("receiver", p.ReceiverAddress).Msg("Link removed")
	return &rpc.SuccessResult{Success: true}, nil
}

// GetLinkableChannels lists the channels that can be peered with a
// channel: those of the opposite role, on other devices, not yet linked
// with it.
func (s *Service) GetLinkableChannels(ctx context.Context, p rpc.LinkableChannelsParams) (*rpc.LinkableChannelsResult, error) {
	if p.EntryID == "" || p.ChannelAddress == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "entry_id and channel_address are required")
	}
	_, ch, err := s.linkChannel(ctx, p.EntryID, p.ChannelAddress)
	if err != nil {
		return nil, err
	}
	role := p.Role
	if role == "" {
		role = db.LinkRole(ch.Type)
	}
	if role != RoleSender && role != RoleReceiver {
		return &rpc.LinkableChannelsResult{Channels: []paramset.LinkableChannel{}}, nil
	}
	want := RoleReceiver
	if role == RoleReceiver {
		want = RoleSender
	}

	existing, err := s.db.Links().List(ctx, p.EntryID, deviceOf(p.ChannelAddress))
	if err != nil {
		return nil, err
	}
	var peers []string
	for _, l := range existing {
		switch p.ChannelAddress {
		case l.SenderAddress:
			peers = append(peers, l.ReceiverAddress)
		case l.ReceiverAddress:
			peers = append(peers, l.SenderAddress)
		}
	}

	devices, err := s.db.Devices().List(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}
	res := &rpc.LinkableChannelsResult{Channels: []paramset.LinkableChannel{}}
	for _, d := range devices {
		if d.Address == deviceOf(p.ChannelAddress) {
			continue
		}
		for _, c := range d.Channels {
			if db.LinkRole(c.Type) != want || slices.Contains(peers, c.Address) {
				continue
			}
			res.Channels = append(res.Channels, paramset.LinkableChannel{
				Address:     c.Address,
				DeviceName:  d.Name,
				ChannelType: c.Type,
				Role:        want,
			})
		}
	}
	return res, nil
}
