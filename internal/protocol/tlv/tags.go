package tlv

// Optional parameter ids defined by SMPP 3.4.
const (
	DestAddrSubunit          uint16 = 0x0005
	DestNetworkType          uint16 = 0x0006
	DestBearerType           uint16 = 0x0007
	DestTelematicsID         uint16 = 0x0008
	SourceAddrSubunit        uint16 = 0x000D
	SourceNetworkType        uint16 = 0x000E
	SourceBearerType         uint16 = 0x000F
	SourceTelematicsID       uint16 = 0x0010
	QOSTimeToLive            uint16 = 0x0017
	PayloadType              uint16 = 0x0019
	AdditionalStatusInfoText uint16 = 0x001D
	ReceiptedMessageID       uint16 = 0x001E
	MSMsgWaitFacilities      uint16 = 0x0030
	PrivacyIndicator         uint16 = 0x0201
	SourceSubaddress         uint16 = 0x0202
	DestSubaddress           uint16 = 0x0203
	UserMessageReference     uint16 = 0x0204
	UserResponseCode         uint16 = 0x0205
	SourcePort               uint16 = 0x020A
	DestinationPort          uint16 = 0x020B
	SARMsgRefNum             uint16 = 0x020C
	LanguageIndicator        uint16 = 0x020D
	SARTotalSegments         uint16 = 0x020E
	SARSegmentSeqnum         uint16 = 0x020F
	SCInterfaceVersion       uint16 = 0x0210
	CallbackNumPresInd       uint16 = 0x0302
	CallbackNumAtag          uint16 = 0x0303
	NumberOfMessages         uint16 = 0x0304
	CallbackNum              uint16 = 0x0381
	DPFResult                uint16 = 0x0420
	SetDPF                   uint16 = 0x0421
	MSAvailabilityStatus     uint16 = 0x0422
	NetworkErrorCode         uint16 = 0x0423
	MessagePayload           uint16 = 0x0424
	DeliveryFailureReason    uint16 = 0x0425
	MoreMessagesToSend       uint16 = 0x0426
	MessageState             uint16 = 0x0427
	USSDServiceOp            uint16 = 0x0501
	DisplayTime              uint16 = 0x1201
	SMSSignal                uint16 = 0x1203
	MSValidity               uint16 = 0x1204
	AlertOnMessageDelivery   uint16 = 0x130C
	ITSReplyType             uint16 = 0x1380
	ITSSessionInfo           uint16 = 0x1383
)

type definition struct {
	id       uint16
	name     string
	codec    Codec
	min, max int
}

func intDef(id uint16, name string, width int) definition {
	return definition{id: id, name: name, codec: Integer, min: width, max: width}
}

var standardDefinitions = []definition{
	intDef(DestAddrSubunit, "dest_addr_subunit", 1),
	intDef(DestNetworkType, "dest_network_type", 1),
	intDef(DestBearerType, "dest_bearer_type", 1),
	intDef(DestTelematicsID, "dest_telematics_id", 2),
	intDef(SourceAddrSubunit, "source_addr_subunit", 1),
	intDef(SourceNetworkType, "source_network_type", 1),
	intDef(SourceBearerType, "source_bearer_type", 1),
	intDef(SourceTelematicsID, "source_telematics_id", 1),
	intDef(QOSTimeToLive, "qos_time_to_live", 4),
	intDef(PayloadType, "payload_type", 1),
	{AdditionalStatusInfoText, "additional_status_info_text", CString, 1, 256},
	{ReceiptedMessageID, "receipted_message_id", CString, 1, 65},
	{MSMsgWaitFacilities, "ms_msg_wait_facilities", Bitmask, 1, 1},
	intDef(PrivacyIndicator, "privacy_indicator", 1),
	{SourceSubaddress, "source_subaddress", Octets, 2, 23},
	{DestSubaddress, "dest_subaddress", Octets, 2, 23},
	intDef(UserMessageReference, "user_message_reference", 2),
	intDef(UserResponseCode, "user_response_code", 1),
	intDef(SourcePort, "source_port", 2),
	intDef(DestinationPort, "destination_port", 2),
	intDef(SARMsgRefNum, "sar_msg_ref_num", 2),
	intDef(LanguageIndicator, "language_indicator", 1),
	intDef(SARTotalSegments, "sar_total_segments", 1),
	intDef(SARSegmentSeqnum, "sar_segment_seqnum", 1),
	intDef(SCInterfaceVersion, "sc_interface_version", 1),
	{CallbackNumPresInd, "callback_num_pres_ind", Bitmask, 1, 1},
	{CallbackNumAtag, "callback_num_atag", Octets, Unbounded, 65},
	intDef(NumberOfMessages, "number_of_messages", 1),
	{CallbackNum, "callback_num", Octets, 4, 19},
	intDef(DPFResult, "dpf_result", 1),
	intDef(SetDPF, "set_dpf", 1),
	intDef(MSAvailabilityStatus, "ms_availability_status", 1),
	{NetworkErrorCode, "network_error_code", Octets, 3, 3},
	{MessagePayload, "message_payload", Octets, Unbounded, Unbounded},
	intDef(DeliveryFailureReason, "delivery_failure_reason", 1),
	intDef(MoreMessagesToSend, "more_messages_to_send", 1),
	intDef(MessageState, "message_state", 1),
	{USSDServiceOp, "ussd_service_op", Octets, 1, 1},
	intDef(DisplayTime, "display_time", 1),
	intDef(SMSSignal, "sms_signal", 2),
	intDef(MSValidity, "ms_validity", 1),
	{AlertOnMessageDelivery, "alert_on_message_delivery", NoValue, 0, 0},
	intDef(ITSReplyType, "its_reply_type", 1),
	{ITSSessionInfo, "its_session_info", Octets, 2, 2},
}

// NewStandardRegistry returns a registry preloaded with the SMPP 3.4
// optional parameters.
func NewStandardRegistry() *Registry {
	r := NewRegistry()
	for _, d := range standardDefinitions {
		if _, err := r.Register(d.id, d.name, d.codec, d.min, d.max); err != nil {
			panic(err)
		}
	}
	return r
}
