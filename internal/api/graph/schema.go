package graph

// schemaString GraphQL Schema定义
const schemaString = `
scalar Time

type Account {
  id: ID!
  email: String!
  role: String!
  firstName: String!
  lastName: String!
  matricNumber: String
  faculty: String
  department: String
  level: String
  staffId: String
  redirect: String!
}

type Candidate {
  id: ID!
  name: String!
  position: String!
  imageUrl: String!
  manifesto: String!
  createdAt: Time!
}

type Election {
  title: String!
  description: String!
  instructions: String!
  status: String!
  startDate: Time
  endDate: Time
  candidateDeadline: Time
  resultsVisibility: String!
  autoTransition: Boolean!
  lastUpdated: Time
  votingOpen: Boolean!
  candidateRegistrationOpen: Boolean!
}

type BallotPosition {
  position: String!
  candidates: [Candidate!]!
}

type CandidateCount {
  candidateId: ID!
  name: String!
  imageUrl: String!
  votes: Int!
  percent: Float!
}

type PositionResult {
  position: String!
  totalVotes: Int!
  candidates: [CandidateCount!]!
  # 唯一领先且票数大于0的候选人，平票时为空
  leader: CandidateCount
}

type Results {
  positions: [PositionResult!]!
  totalVoters: Int!
  updatedAt: Time!
}

type StudentDashboard {
  student: Account!
  election: Election!
  hasVoted: Boolean!
  canVote: Boolean!
}

type AdminDashboard {
  election: Election!
  registeredVoters: Int!
  votesCast: Int!
  candidates: Int!
  positions: Int!
  turnout: Float!
}

type LoginPayload {
  token: String!
  expiresAt: Time!
  redirect: String!
  account: Account!
}

type VotePayload {
  success: Boolean!
  message: String!
  timestamp: Time!
}

input StudentRegistrationInput {
  firstName: String!
  lastName: String!
  matricNumber: String!
  faculty: String!
  department: String!
  level: String!
  email: String!
  password: String!
  confirmPassword: String!
}

input AdminRegistrationInput {
  firstName: String!
  lastName: String!
  email: String!
  staffId: String
  password: String!
  confirmPassword: String!
  signupCode: String
}

input CandidateInput {
  name: String!
  position: String!
  manifesto: String
  imageUrl: String
}

input ElectionInput {
  title: String
  description: String
  instructions: String
  status: String
  startDate: Time
  endDate: Time
  candidateDeadline: Time
  resultsVisibility: String
  autoTransition: Boolean
}

input SelectionInput {
  position: String!
  candidateId: ID!
}

type Query {
  me: Account!
  studentDashboard: StudentDashboard!
  adminDashboard: AdminDashboard!
  election: Election!
  positions: [String!]!
  candidates(position: String): [Candidate!]!
  candidate(id: ID!): Candidate!
  ballot: [BallotPosition!]!
  hasVoted: Boolean!
  votingState: String!
  results: Results!
  # 按学号子串搜索，忽略大小写
  registeredVoters(search: String): [Account!]!
}

type Mutation {
  registerStudent(input: StudentRegistrationInput!): Account!
  registerAdmin(input: AdminRegistrationInput!): Account!
  # identifier 可以是邮箱、学号或工号
  login(identifier: String!, password: String!): LoginPayload!
  logout: Boolean!
  requestPasswordReset(email: String!): Boolean!
  addCandidates(input: [CandidateInput!]!): [Candidate!]!
  removeCandidate(id: ID!): Boolean!
  updateElection(input: ElectionInput!): Election!
  submitVote(selections: [SelectionInput!]!): VotePayload!
}

schema {
  query: Query
  mutation: Mutation
}
`
