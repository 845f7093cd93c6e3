package rdss

const (
	messageClassCommand   = "Command"
	messageTypeMetaCreate = "MetadataCreate"
	machineID             = "eprints-adaptor"
	storagePlatformS3     = "S3"
)

type Message struct {
	MessageHeader MessageHeader `json:"messageHeader"`
	MessageBody   MessageBody   `json:"messageBody"`
}

type MessageHeader struct {
	MessageID       string           `json:"messageId"`
	MessageClass    string           `json:"messageClass"`
	MessageType     string           `json:"messageType"`
	ReturnAddress   string           `json:"returnAddress,omitempty"`
	MessageTimings  MessageTimings   `json:"messageTimings"`
	MessageSequence MessageSequence  `json:"messageSequence"`
	MessageHistory  []MessageHistory `json:"messageHistory"`
	Version         string           `json:"version"`
	Generator       string           `json:"generator"`
}

type MessageTimings struct {
	PublishedTimestamp string `json:"publishedTimestamp"`
}

type MessageSequence struct {
	Sequence string `json:"sequence"`
	Position int    `json:"position"`
	Total    int    `json:"total"`
}

type MessageHistory struct {
	MachineID string `json:"machineId"`
	Timestamp string `json:"timestamp"`
}

type MessageBody struct {
	ObjectUUID             string             `json:"objectUuid"`
	ObjectTitle            string             `json:"objectTitle"`
	ObjectPersonRole       []PersonRole       `json:"objectPersonRole"`
	ObjectDescription      string             `json:"objectDescription"`
	ObjectRights           Rights             `json:"objectRights"`
	ObjectDate             []Date             `json:"objectDate"`
	ObjectKeywords         []string           `json:"objectKeywords"`
	ObjectCategory         []string           `json:"objectCategory"`
	ObjectResourceType     string             `json:"objectResourceType"`
	ObjectValue            string             `json:"objectValue"`
	ObjectIdentifier       []Identifier       `json:"objectIdentifier"`
	ObjectOrganisationRole []OrganisationRole `json:"objectOrganisationRole"`
	ObjectFile             []File             `json:"objectFile"`
}

type PersonRole struct {
	Person Person `json:"person"`
	Role   string `json:"role"`
}

type Person struct {
	PersonUUID        string `json:"personUuid"`
	PersonGivenNames  string `json:"personGivenNames"`
	PersonFamilyNames string `json:"personFamilyNames"`
}

type Rights struct {
	RightsStatement []string `json:"rightsStatement"`
}

type Date struct {
	DateValue string `json:"dateValue"`
	DateType  string `json:"dateType"`
}

type Identifier struct {
	IdentifierValue string `json:"identifierValue"`
	IdentifierType  string `json:"identifierType"`
}

type OrganisationRole struct {
	Organisation Organisation `json:"organisation"`
	Role         string       `json:"role"`
}

type Organisation struct {
	OrganisationJiscID int    `json:"organisationJiscId"`
	OrganisationName   string `json:"organisationName"`
}

type File struct {
	FileUUID            string          `json:"fileUuid"`
	FileIdentifier      string          `json:"fileIdentifier"`
	FileName            string          `json:"fileName"`
	FileSize            int64           `json:"fileSize"`
	FileStorageLocation string          `json:"fileStorageLocation"`
	FileStoragePlatform StoragePlatform `json:"fileStoragePlatform"`
}

type StoragePlatform struct {
	StoragePlatformType string `json:"storagePlatformType"`
}
